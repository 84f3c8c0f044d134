package rules

var defaultInstances = map[string][]string{
	// human
	"person": {"Q5"},
	// organization, business, company
	"organization": {"Q43229", "Q4830453", "Q783794"},
	// geographic location, city, country
	"location": {"Q17334923", "Q515", "Q6256"},
	// event
	"event": {"Q1656682"},
	// creative work, literary work, film
	"creative_work": {"Q17537576", "Q7725634", "Q11424"},
}

var defaultRules = map[string][]Rule{
	"person": {
		{Code: "P569", Kind: Date},      // date of birth
		{Code: "P570", Kind: Date},      // date of death
		{Code: "P27", Kind: Reference},  // country of citizenship
		{Code: "P106", Kind: Reference}, // occupation
		{Code: "P18", Kind: Image, Key: "image"},
		{Code: "P39", Kind: Reference}, // position held
		{Code: "P1449", Kind: Text},    // nickname
	},
	"organization": {
		{Code: "P17", Kind: Reference},  // country
		{Code: "P112", Kind: Reference}, // founded by
		{Code: "P571", Kind: Date},      // inception
		{Code: "P18", Kind: Image, Key: "image"},
		{Code: "P154", Kind: Image, Key: "logo"},
		{Code: "P1454", Kind: Reference}, // legal form
		{Code: "P856", Kind: URL},        // official website
	},
	"location": {
		{Code: "P625", Kind: Passthrough}, // coordinate location
		{Code: "P17", Kind: Reference},
		{Code: "P18", Kind: Image, Key: "image"},
		{Code: "P421", Kind: Reference}, // time zone
	},
	"event": {
		{Code: "P585", Kind: Date}, // point in time
		{Code: "P17", Kind: Reference},
		{Code: "P276", Kind: Reference}, // location
		{Code: "P31", Kind: Reference},
		{Code: "P18", Kind: Image, Key: "image"},
	},
	"creative_work": {
		{Code: "P50", Kind: Reference},  // author
		{Code: "P577", Kind: Date},      // publication date
		{Code: "P136", Kind: Reference}, // genre
		{Code: "P921", Kind: Reference}, // main subject
		{Code: "P18", Kind: Image, Key: "image"},
	},
}

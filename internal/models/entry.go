package models

// Attributes is the normalized attribute map produced for one record.
// Values are strings or decoded JSON values (maps, slices, numbers).
type Attributes map[string]any

// Entry is one key-value store record. It is keyed by ID.
type Entry struct {
	ID          string     `json:"id" msgpack:"id"`
	Type        string     `json:"type" msgpack:"type"`
	Label       string     `json:"label" msgpack:"label"`
	Description string     `json:"description" msgpack:"description"`
	Aliases     []string   `json:"aliases,omitempty" msgpack:"aliases,omitempty"`
	Properties  Attributes `json:"properties" msgpack:"properties"`
}

// IndexEntry is one row of a per-type lookup file.
type IndexEntry struct {
	Name string
	ID   string
}

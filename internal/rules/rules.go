// Package rules holds the static extraction configuration: which taxonomy
// identifiers make a record belong to an entity type, and which properties
// are pulled from records of that type and how.
package rules

import "sort"

// Kind selects the transformation applied to a property's first statement.
type Kind int

const (
	Passthrough Kind = iota
	Date
	Reference
	Image
	Text
	URL
)

func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case Reference:
		return "reference"
	case Image:
		return "image"
	case Text:
		return "text"
	case URL:
		return "url"
	default:
		return "passthrough"
	}
}

// InstanceOf is the property whose statements carry a record's types.
const InstanceOf = "P31"

// Rule extracts one property code into one output attribute.
type Rule struct {
	Code string
	Kind Kind
	// Key is the attribute name in the output; empty means Code.
	Key string
}

// OutputKey returns the attribute name the rule writes to.
func (r Rule) OutputKey() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Code
}

// Table maps entity types to their accepted taxonomy identifiers and rules.
type Table struct {
	instances map[string]map[string]struct{}
	rules     map[string][]Rule
}

// New builds a table from explicit data. Types without rules extract nothing
// but can still be matched and indexed.
func New(instances map[string][]string, rules map[string][]Rule) *Table {
	t := &Table{
		instances: make(map[string]map[string]struct{}, len(instances)),
		rules:     make(map[string][]Rule, len(rules)),
	}
	for typ, ids := range instances {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		t.instances[typ] = set
	}
	for typ, rs := range rules {
		t.rules[typ] = append([]Rule(nil), rs...)
	}
	return t
}

// Default returns the built-in table.
func Default() *Table { return New(defaultInstances, defaultRules) }

// Has reports whether typ is a configured entity type.
func (t *Table) Has(typ string) bool {
	_, ok := t.instances[typ]
	return ok
}

// Types returns the configured entity types in sorted order.
func (t *Table) Types() []string {
	out := make([]string, 0, len(t.instances))
	for typ := range t.instances {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Rules returns the ordered rules for typ; nil for unknown types.
func (t *Table) Rules(typ string) []Rule {
	return t.rules[typ]
}

// Matches reports whether any of the given instance-of identifiers is
// accepted for typ.
func (t *Table) Matches(typ string, instanceIDs []string) bool {
	set, ok := t.instances[typ]
	if !ok {
		return false
	}
	for _, id := range instanceIDs {
		if _, hit := set[id]; hit {
			return true
		}
	}
	return false
}

package models

import (
	"bytes"
	"encoding/json"
)

// LangValue is a language-tagged string as found in labels, descriptions and aliases.
type LangValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// LangMap maps a language code to its value.
type LangMap map[string]LangValue

// AliasMap maps a language code to the aliases in that language.
type AliasMap map[string][]LangValue

// Claims maps a property code to its statements.
type Claims map[string][]Statement

// Statement is one claim entry. Only the main snak is consulted.
type Statement struct {
	Mainsnak Snak   `json:"mainsnak"`
	Rank     string `json:"rank,omitempty"`
}

// Snak holds the typed value of a statement. Datavalue is nil for
// "novalue" and "somevalue" snaks.
type Snak struct {
	Snaktype  string     `json:"snaktype"`
	Property  string     `json:"property"`
	Datavalue *DataValue `json:"datavalue,omitempty"`
}

// DataValue is the raw typed payload of a snak.
type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Record is one decoded input line. Missing top-level sections stay nil so
// that callers can tell "absent" from "empty".
type Record struct {
	ID           string   `json:"id"`
	Type         string   `json:"type,omitempty"`
	Claims       Claims   `json:"claims"`
	Labels       LangMap  `json:"labels"`
	Descriptions LangMap  `json:"descriptions"`
	Aliases      AliasMap `json:"aliases"`
}

// Complete reports whether every section the pipeline depends on is present.
func (r *Record) Complete() bool {
	return r.ID != "" && r.Claims != nil && r.Labels != nil && r.Descriptions != nil && r.Aliases != nil
}

// Label returns the label in lang.
func (r *Record) Label(lang string) (string, bool) {
	v, ok := r.Labels[lang]
	if !ok || v.Value == "" {
		return "", false
	}
	return v.Value, true
}

// Description returns the description in lang, or "".
func (r *Record) Description(lang string) string {
	return r.Descriptions[lang].Value
}

// AliasValues returns the alias strings in lang.
func (r *Record) AliasValues(lang string) []string {
	as := r.Aliases[lang]
	if len(as) == 0 {
		return nil
	}
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Value)
	}
	return out
}

// First returns the first statement for code. Later statements are ignored.
func (c Claims) First(code string) (Statement, bool) {
	sts := c[code]
	if len(sts) == 0 {
		return Statement{}, false
	}
	return sts[0], true
}

// ReferencedIDs returns the entity ids referenced by every statement of code.
func (c Claims) ReferencedIDs(code string) []string {
	var out []string
	for _, st := range c[code] {
		if id, ok := st.EntityID(); ok {
			out = append(out, id)
		}
	}
	return out
}

// Value returns the raw datavalue payload, or nil.
func (s Statement) Value() json.RawMessage {
	if s.Mainsnak.Datavalue == nil {
		return nil
	}
	return s.Mainsnak.Datavalue.Value
}

// EntityID returns value.id for entity-valued statements.
func (s Statement) EntityID() (string, bool) {
	var v struct {
		ID string `json:"id"`
	}
	raw := s.Value()
	if len(raw) == 0 || raw[0] != '{' {
		return "", false
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.ID == "" {
		return "", false
	}
	return v.ID, true
}

// Dumps serialise empty objects as "[]"; these decoders accept both.

func (m *LangMap) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*m = LangMap{}
		return nil
	}
	return json.Unmarshal(b, (*map[string]LangValue)(m))
}

func (m *AliasMap) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*m = AliasMap{}
		return nil
	}
	return json.Unmarshal(b, (*map[string][]LangValue)(m))
}

func (c *Claims) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*c = Claims{}
		return nil
	}
	return json.Unmarshal(b, (*map[string][]Statement)(c))
}

func isEmptyArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) < 2 || b[0] != '[' || b[len(b)-1] != ']' {
		return false
	}
	return len(bytes.TrimSpace(b[1:len(b)-1])) == 0
}

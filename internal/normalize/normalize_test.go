package normalize

import (
	"testing"
)

func TestDate(t *testing.T) {
	cases := map[string]string{
		"+1900-01-01T00:00:00Z":   "1900-01-01T00:00:00Z",
		"1900-01-01T00:00:00Z":    "1900-01-01T00:00:00Z",
		"-0500-00-00T00:00:00Z":   "-0500-00-00T00:00:00Z",
		"  +2001-09-11T00:00:00Z": "2001-09-11T00:00:00Z",
	}
	for in, want := range cases {
		if got := Date(in); got != want {
			t.Fatalf("Date(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestLabel(t *testing.T) {
	cases := map[string]string{
		"  Ada   Lovelace ": "Ada Lovelace",
		"Cafe\u0301":        "Caf\u00e9",
		"single":            "single",
		"tab\tand\nnewline": "tab and newline",
	}
	for in, want := range cases {
		if got := Label(in); got != want {
			t.Fatalf("Label(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestIdentifier(t *testing.T) {
	ok := map[string]string{
		"Q42":    "Q42",
		"P31":    "P31",
		"L7-F1":  "L7",
		"Q5-abc": "Q5",
	}
	for in, want := range ok {
		got, matched := Identifier(in)
		if !matched || got != want {
			t.Fatalf("Identifier(%q)=%q,%v; want %q,true", in, got, matched, want)
		}
	}
	for _, in := range []string{"", "Q", "42", "q42", "Q42x", "X42", "https://example.org/Q42", "-Q42"} {
		if got, matched := Identifier(in); matched {
			t.Fatalf("Identifier(%q)=%q; want no match", in, got)
		}
	}
}

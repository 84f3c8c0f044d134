package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// QualifierSep separates an identifier from a trailing qualifier, as in the
// lexeme form "L7-F1".
const QualifierSep = "-"

var (
	idRe    = regexp.MustCompile(`^[QPL][0-9]+$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Date simplifies a knowledge-base time string.
// The leading "+" is dropped; a leading "-" (BCE) is kept since it carries meaning.
// Examples:
//
//	"+1900-01-01T00:00:00Z" -> "1900-01-01T00:00:00Z"
//	"-0500-00-00T00:00:00Z" -> "-0500-00-00T00:00:00Z"
func Date(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "+")
}

// Label returns the canonical display form of a label: NFC-composed,
// trimmed, with internal whitespace runs collapsed to one space.
func Label(s string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	return spaceRe.ReplaceAllString(s, " ")
}

// Identifier reports whether s looks like a foreign entity identifier and
// returns the bare identifier with any qualifier stripped.
//
//	"Q42"   -> "Q42", true
//	"L7-F1" -> "L7", true
//	"Q42x"  -> "", false
func Identifier(s string) (string, bool) {
	if i := strings.Index(s, QualifierSep); i >= 0 {
		s = s[:i]
	}
	if !idRe.MatchString(s) {
		return "", false
	}
	return s, true
}

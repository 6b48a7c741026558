package wire

import (
	"regexp"
	"strings"
)

var bareIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]+$`)

// QuoteIdentifier doubles any embedded double-quote and wraps the
// result in double quotes, unless the identifier already matches the
// bare CQL identifier grammar [a-z_][a-z0-9_]+, in which case it is
// returned unquoted. Note this means a single-character identifier is
// always quoted, since the grammar requires at least two characters.
func QuoteIdentifier(ident string) string {
	if bareIdentifier.MatchString(ident) {
		return ident
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteValue doubles any embedded single-quote and wraps the result
// in single quotes, for inlining a literal into CQL text.
func QuoteValue(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

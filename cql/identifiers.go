package cql

import "github.com/burmanm/cassnet-client/wire"

// QuoteIdentifier doubles an embedded double-quote and wraps the
// result in double quotes, unless ident already matches the bare CQL
// identifier grammar, in which case it is returned unquoted.
func QuoteIdentifier(ident string) string {
	return wire.QuoteIdentifier(ident)
}

// QuoteValue doubles an embedded single-quote and wraps the result in
// single quotes, for inlining a literal into CQL text.
func QuoteValue(v string) string {
	return wire.QuoteValue(v)
}

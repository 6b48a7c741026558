package cql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "bare_ident", QuoteIdentifier("bare_ident"))
	assert.Equal(t, `"Weird Name"`, QuoteIdentifier("Weird Name"))
	assert.Equal(t, `"has""quote"`, QuoteIdentifier(`has"quote`))
}

func TestQuoteValue(t *testing.T) {
	assert.Equal(t, "'plain'", QuoteValue("plain"))
	assert.Equal(t, "'it''s here'", QuoteValue("it's here"))
}

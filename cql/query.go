package cql

import (
	"context"

	"github.com/burmanm/cassnet-client/wire"
)

// Query is a fluent, one-shot CQL statement bound to a Session.
type Query struct {
	session     *Session
	cqlText     string
	consistency wire.Consistency
}

// Consistency overrides the session's default consistency for this
// query only.
func (q *Query) Consistency(c wire.Consistency) *Query {
	q.consistency = c
	return q
}

// Exec sends the query and decodes its OPCODE_RESULT reply.
func (q *Query) Exec(ctx context.Context) (*wire.Result, error) {
	return q.session.conn.Query(ctx, q.cqlText, q.consistency)
}

package cql

import (
	"context"
	"fmt"
	"runtime"

	"github.com/burmanm/cassnet-client/wire"
)

// BindingError is a local, per-call failure: an unknown parameter
// name or a position bound twice (§7).
type BindingError struct {
	Detail string
}

func (e *BindingError) Error() string {
	return "cql: binding error: " + e.Detail
}

// PreparedStatement is a server-compiled statement referenced by an
// opaque id, plus the parameter metadata needed to encode bind values
// (§4.G).
type PreparedStatement struct {
	session     *Session
	cqlText     string
	id          []byte
	metadata    *wire.Metadata
	consistency wire.Consistency
}

// CQLText returns the original statement text this handle was
// prepared from.
func (ps *PreparedStatement) CQLText() string {
	return ps.cqlText
}

// ParameterCount returns the number of bind parameters.
func (ps *PreparedStatement) ParameterCount() int {
	return ps.metadata.Count()
}

// Consistency overrides the session's default consistency for
// executions of this handle.
func (ps *PreparedStatement) Consistency(c wire.Consistency) *PreparedStatement {
	ps.consistency = c
	return ps
}

// Execute binds values and runs the statement. bindings is either a
// positional []interface{} (must match ParameterCount) or a
// name-keyed map[string]interface{} resolved via the parameter
// metadata's short names; an unknown name or a position bound twice
// is a *BindingError.
func (ps *PreparedStatement) Execute(ctx context.Context, bindings interface{}) (*wire.Result, error) {
	positional, err := ps.resolveBindings(bindings)
	if err != nil {
		return nil, err
	}
	encoded, err := ps.metadata.EncodeRow(positional)
	if err != nil {
		return nil, err
	}
	return ps.session.conn.Execute(ctx, ps.id, encoded, ps.consistency)
}

func (ps *PreparedStatement) resolveBindings(bindings interface{}) ([]interface{}, error) {
	switch b := bindings.(type) {
	case nil:
		if ps.metadata.Count() != 0 {
			return nil, &BindingError{fmt.Sprintf("expected %d bind values, got none", ps.metadata.Count())}
		}
		return nil, nil

	case []interface{}:
		if len(b) != ps.metadata.Count() {
			return nil, &BindingError{fmt.Sprintf("expected %d positional bind values, got %d", ps.metadata.Count(), len(b))}
		}
		return b, nil

	case map[string]interface{}:
		out := make([]interface{}, ps.metadata.Count())
		bound := make([]bool, ps.metadata.Count())
		for name, v := range b {
			idx := ps.metadata.FindColumn(name)
			if idx < 0 {
				return nil, &BindingError{fmt.Sprintf("unknown parameter %q", name)}
			}
			if bound[idx] {
				return nil, &BindingError{fmt.Sprintf("parameter %q bound more than once", name)}
			}
			bound[idx] = true
			out[idx] = v
		}
		for i, ok := range bound {
			if !ok {
				return nil, &BindingError{fmt.Sprintf("parameter %q not bound", ps.metadata.ColumnShortName(i))}
			}
		}
		return out, nil

	default:
		return nil, &BindingError{fmt.Sprintf("bindings must be []interface{} or map[string]interface{}, got %T", bindings)}
	}
}

// teardownSuppressed is flipped by process-exit hooks so that garbage
// collection during teardown does not post eviction notifications
// into an already-dying session (§9 design notes).
var teardownSuppressed bool

// SuppressEvictionOnTeardown disables prepared-statement eviction
// notifications process-wide. Call it once, from the process's exit
// path, before the runtime starts finalizing objects during shutdown.
func SuppressEvictionOnTeardown() {
	teardownSuppressed = true
}

func registerPreparedFinalizer(ps *PreparedStatement) {
	runtime.SetFinalizer(ps, func(ps *PreparedStatement) {
		if teardownSuppressed {
			return
		}
		ps.session.evict(ps.cqlText)
	})
}

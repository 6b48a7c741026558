package conn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the connection's fatal failure classes, following
// the package-level var Err... convention used throughout the pack's
// Cassandra-facing Go code.
var (
	// ErrProtocol marks a connection-fatal protocol violation: a bad
	// version byte, a reply with an unexpected opcode, a malformed
	// AUTHENTICATE or RESULT body, or an unknown result kind. A stream
	// that ends partway through a frame is reported as
	// ErrTransportClosed.
	ErrProtocol = errors.New("conn: protocol violation")

	// ErrAuth marks an unrecognised authenticator or missing
	// credentials. Fatal.
	ErrAuth = errors.New("conn: authentication failed")

	// ErrTransportClosed marks a closed underlying transport. Fails
	// every in-flight and queued request.
	ErrTransportClosed = errors.New("conn: transport closed")

	// ErrCanceled marks a caller-cancelled request.
	ErrCanceled = errors.New("conn: request canceled")

	// ErrConnClosed is returned to any submission made after the
	// connection has already closed, wrapped together with the error
	// that closed it.
	ErrConnClosed = errors.New("conn: connection closed")
)

// ServerError is a per-request failure carrying the server's
// OPCODE_ERROR code and message. The connection remains open.
type ServerError struct {
	Code    int32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("conn: server error 0x%08x: %s", uint32(e.Code), e.Message)
}

// ProtocolError decorates ErrProtocol with detail about what was
// observed.
type ProtocolError struct {
	Detail string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return "conn: protocol violation: " + e.Detail + ": " + e.Cause.Error()
	}
	return "conn: protocol violation: " + e.Detail
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

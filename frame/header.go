// Package frame implements the CQL v1 message framer: 8-byte header
// emission/parsing and stream-id-keyed demultiplex support on top of
// wire.Buffer.
package frame

import (
	"fmt"

	"github.com/burmanm/cassnet-client/wire"
)

// Opcode identifies a message's kind in the header's fourth byte.
type Opcode byte

const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpCredentials  Opcode = 0x04
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0A
	OpRegister     Opcode = 0x0B
	OpEvent        Opcode = 0x0C
)

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpCredentials:
		return "CREDENTIALS"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("OPCODE(0x%02x)", byte(o))
	}
}

const (
	// RequestVersion is the protocol version byte on client-sent frames.
	RequestVersion byte = 0x01
	// ResponseVersion is the protocol version byte the server must
	// stamp on every reply.
	ResponseVersion byte = 0x81

	// FlagCompression is reserved: this implementation never sets it
	// (compression negotiation is a Non-goal).
	FlagCompression byte = 0x01

	// EventStreamID is the reserved stream id (-1 / 0xFF) servers use
	// for unsolicited OPCODE_EVENT messages.
	EventStreamID int8 = -1

	// HeaderLen is the fixed size of a protocol header in bytes.
	HeaderLen = 8
)

// Header is the fixed 8-byte message header.
type Header struct {
	Version  byte
	Flags    byte
	StreamID int8
	Opcode   Opcode
	Length   uint32
}

// Frame is a fully parsed message: header plus body bytes.
type Frame struct {
	Header Header
	Body   []byte
}

// Build serializes a complete outgoing frame: 8-byte header, stamped
// with version, followed by body.
func Build(version byte, streamID int8, opcode Opcode, flags byte, body []byte) []byte {
	b := wire.New()
	b.PackByte(version)
	b.PackByte(flags)
	b.PackByte(byte(streamID))
	b.PackByte(byte(opcode))
	b.PackInt(int32(len(body)))
	buf := b.Bytes()
	buf = append(buf, body...)
	return buf
}

// BuildRequest serializes a client-to-server frame stamped with
// RequestVersion.
func BuildRequest(streamID int8, opcode Opcode, flags byte, body []byte) []byte {
	return Build(RequestVersion, streamID, opcode, flags, body)
}

// BuildResponse serializes a server-to-client frame stamped with
// ResponseVersion. Used by internal/testserver to play the server
// side of the protocol against this package's own Parse.
func BuildResponse(streamID int8, opcode Opcode, flags byte, body []byte) []byte {
	return Build(ResponseVersion, streamID, opcode, flags, body)
}

// ErrBadVersion is returned when an incoming frame's version byte is
// not ResponseVersion. It is always a fatal, connection-closing error.
type ErrBadVersion struct {
	Got byte
}

func (e *ErrBadVersion) Error() string {
	return fmt.Sprintf("frame: unexpected protocol version 0x%02x (want 0x%02x)", e.Got, ResponseVersion)
}

// Parse consumes one complete frame from the front of buf and returns
// it along with the number of bytes consumed. It returns (nil, 0, nil)
// if fewer than HeaderLen+body_length bytes are available yet — the
// caller should wait for more data. Any version other than
// ResponseVersion is a fatal protocol violation.
func Parse(buf []byte) (*Frame, int, error) {
	if len(buf) < HeaderLen {
		return nil, 0, nil
	}
	version := buf[0]
	flags := buf[1]
	streamID := int8(buf[2])
	opcode := Opcode(buf[3])
	length := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])

	total := HeaderLen + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	if version != ResponseVersion {
		return nil, 0, &ErrBadVersion{Got: version}
	}

	body := make([]byte, length)
	copy(body, buf[HeaderLen:total])

	f := &Frame{
		Header: Header{
			Version:  version,
			Flags:    flags,
			StreamID: streamID,
			Opcode:   opcode,
			Length:   length,
		},
		Body: body,
	}
	return f, total, nil
}

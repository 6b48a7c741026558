// Package testserver is a fake single-connection Cassandra node used
// to exercise conn.Connection and cql.Session without a real cluster.
// It is adapted from the teacher repo's evio-based STARTUP/PREPARE
// responder (burmanm/cassnet's cassandra package): the same
// READY/VOID/PREPARED message-building idea, generalized to the full
// protocol and served over a plain net.Listener instead of an
// edge-triggered event loop, since this module is a client library
// and has no server-loop of its own to reuse.
package testserver

import (
	"crypto/md5"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/burmanm/cassnet-client/frame"
	"github.com/burmanm/cassnet-client/wire"
)

// QueryHandler produces the OPCODE_RESULT body for a QUERY request's
// CQL text. Returning a nil body with a non-nil err sends an
// OPCODE_ERROR frame instead.
type QueryHandler func(cqlOrID string) (body []byte, err *ServerErr)

// ServerErr is the code+message pair the fake server writes back as
// an OPCODE_ERROR body.
type ServerErr struct {
	Code    int32
	Message string
}

// Server is a fake Cassandra node serving each accepted connection on
// its own goroutine, replying to the handshake automatically and delegating
// QUERY/EXECUTE/PREPARE bodies to configurable handlers.
type Server struct {
	ln net.Listener

	// AuthenticatorClass, if non-empty, makes STARTUP respond with
	// AUTHENTICATE instead of READY.
	AuthenticatorClass string
	// ExpectCredentials, when AuthenticatorClass is set, are the
	// username/password CREDENTIALS must match for READY; anything
	// else gets an OPCODE_ERROR.
	ExpectCredentials map[string]string

	// OnQuery decides the RESULT body for a QUERY's CQL text.
	OnQuery QueryHandler
	// OnPrepare decides the (id, PreparedMetadata) for a PREPARE's
	// CQL text. Defaults to a single-counter-based id with empty
	// metadata if left nil.
	OnPrepare func(cqlText string) (id []byte, meta *wire.Metadata)
	// OnExecute decides the RESULT body for an EXECUTE's prepared id
	// and decoded bind values.
	OnExecute func(id []byte, values [][]byte) (body []byte, err *ServerErr)
	// Supported is the OPTIONS response payload.
	Supported map[string][]string

	mu        sync.Mutex
	conns     []net.Conn
	prepareID uint64
}

// Listen starts the fake server on an OS-assigned loopback port and
// returns its address.
func Listen() (*Server, string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	s := &Server{ln: ln, Supported: map[string][]string{"CQL_VERSION": {"3.0.5"}}}
	go s.acceptLoop()
	return s, ln.Addr().String(), nil
}

// Close stops accepting connections and closes any open ones.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.mu.Unlock()
		go s.serve(c)
	}
}

func (s *Server) serve(c net.Conn) {
	defer c.Close()
	authenticated := s.AuthenticatorClass == ""
	// Requests carry frame.RequestVersion, which frame.Parse rejects, so
	// request frames are read here directly.
	hdr := make([]byte, frame.HeaderLen)
	for {
		if _, err := io.ReadFull(c, hdr); err != nil || hdr[0] != frame.RequestVersion {
			return
		}
		length := binary.BigEndian.Uint32(hdr[4:])
		body := make([]byte, length)
		if _, err := io.ReadFull(c, body); err != nil {
			return
		}
		f := &frame.Frame{
			Header: frame.Header{Version: hdr[0], Flags: hdr[1], StreamID: int8(hdr[2]), Opcode: frame.Opcode(hdr[3]), Length: length},
			Body:   body,
		}
		switch f.Header.Opcode {
		case frame.OpStartup:
			if authenticated {
				s.reply(c, f.Header.StreamID, frame.OpReady, nil)
				continue
			}
			b := wire.New()
			b.PackString(s.AuthenticatorClass)
			s.reply(c, f.Header.StreamID, frame.OpAuthenticate, b.Bytes())

		case frame.OpCredentials:
			creds, err := wire.Wrap(f.Body).UnpackStringMap()
			if err != nil || !credsMatch(creds, s.ExpectCredentials) {
				s.replyError(c, f.Header.StreamID, 0x0100, "bad credentials")
				continue
			}
			authenticated = true
			s.reply(c, f.Header.StreamID, frame.OpReady, nil)

		case frame.OpOptions:
			b := wire.New()
			b.PackStringMultimap(s.Supported)
			s.reply(c, f.Header.StreamID, frame.OpSupported, b.Bytes())

		case frame.OpQuery:
			cqlText, err := wire.Wrap(f.Body).UnpackLongString()
			if err != nil {
				s.replyError(c, f.Header.StreamID, 0x000A, "malformed QUERY body")
				continue
			}
			if s.OnQuery == nil {
				s.replyError(c, f.Header.StreamID, 0x0000, "no handler configured")
				continue
			}
			body, serr := s.OnQuery(cqlText)
			if serr != nil {
				s.replyError(c, f.Header.StreamID, serr.Code, serr.Message)
				continue
			}
			s.reply(c, f.Header.StreamID, frame.OpResult, body)

		case frame.OpPrepare:
			cqlText, err := wire.Wrap(f.Body).UnpackLongString()
			if err != nil {
				s.replyError(c, f.Header.StreamID, 0x000A, "malformed PREPARE body")
				continue
			}
			var id []byte
			var meta *wire.Metadata
			if s.OnPrepare != nil {
				id, meta = s.OnPrepare(cqlText)
			} else {
				id = s.nextPreparedID()
				meta = &wire.Metadata{}
			}
			body := wire.New()
			body.PackInt(int32(wire.ResultPrepared))
			body.PackShortBytes(id)
			wire.WriteMetadata(body, meta)
			s.reply(c, f.Header.StreamID, frame.OpResult, body.Bytes())

		case frame.OpExecute:
			buf := wire.Wrap(f.Body)
			id, err := buf.UnpackShortBytes()
			if err != nil {
				s.replyError(c, f.Header.StreamID, 0x000A, "malformed EXECUTE body")
				continue
			}
			count, err := buf.UnpackShort()
			if err != nil {
				s.replyError(c, f.Header.StreamID, 0x000A, "malformed EXECUTE body")
				continue
			}
			values := make([][]byte, count)
			for i := range values {
				values[i], err = buf.UnpackBytes()
				if err != nil {
					s.replyError(c, f.Header.StreamID, 0x000A, "malformed EXECUTE body")
					continue
				}
			}
			if s.OnExecute == nil {
				s.replyError(c, f.Header.StreamID, 0x0000, "no handler configured")
				continue
			}
			body, serr := s.OnExecute(id, values)
			if serr != nil {
				s.replyError(c, f.Header.StreamID, serr.Code, serr.Message)
				continue
			}
			s.reply(c, f.Header.StreamID, frame.OpResult, body)

		case frame.OpRegister:
			s.reply(c, f.Header.StreamID, frame.OpReady, nil)

		default:
			s.replyError(c, f.Header.StreamID, 0x000A, "unsupported opcode in test server")
		}
	}
}

// PushEvent writes an unsolicited OPCODE_EVENT frame on the most
// recently accepted connection, if there is one.
func (s *Server) PushEvent(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return
	}
	c := s.conns[len(s.conns)-1]
	c.Write(frame.BuildResponse(frame.EventStreamID, frame.OpEvent, 0, body))
}

func (s *Server) reply(c net.Conn, streamID int8, opcode frame.Opcode, body []byte) {
	c.Write(frame.BuildResponse(streamID, opcode, 0, body))
}

func (s *Server) replyError(c net.Conn, streamID int8, code int32, msg string) {
	b := wire.New()
	b.PackInt(code)
	b.PackString(msg)
	s.reply(c, streamID, frame.OpError, b.Bytes())
}

// nextPreparedID mirrors the teacher's md5(counter) id-generation
// scheme from cassandra/messages.go's PreparedMessage.
func (s *Server) nextPreparedID() []byte {
	n := atomic.AddUint64(&s.prepareID, 1)
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], n)
	sum := md5.Sum(counter[:])
	return sum[:]
}

func credsMatch(got, want map[string]string) bool {
	if len(want) != len(got) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

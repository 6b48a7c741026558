package conn

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/burmanm/cassnet-client/frame"
	"github.com/burmanm/cassnet-client/wire"
)

// passwordAuthenticatorClass is the only authenticator class name this
// implementation recognises (§4.F).
const passwordAuthenticatorClass = "org.apache.cassandra.auth.PasswordAuthenticator"

// defaultCQLVersion resolves spec.md §9's open question between
// 3.0.5 and 3.0.0 in favor of 3.0.5, documented in DESIGN.md.
const defaultCQLVersion = "3.0.5"

// State is the connection's lifecycle state (§3, §4.F).
type State int32

const (
	StateInit State = iota
	StateStarting
	StateAuthenticating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStarting:
		return "starting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Connection at dial time.
type Options struct {
	// Credentials, if non-nil, are sent in response to an
	// AUTHENTICATE challenge using CREDENTIALS.
	Credentials map[string]string
	// Keyspace, if non-empty, is selected with "USE <ident>" once the
	// connection reaches Ready, before Dial returns.
	Keyspace string
	// CQLVersion overrides the STARTUP CQL_VERSION option.
	CQLVersion string
	// Logger receives lifecycle and forward-compatibility warnings.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Connection is a single full-duplex multiplexed connection to a
// Cassandra node (§4.F). All exported methods are safe for concurrent
// use; the reader goroutine and mutex-guarded stream table realize the
// single-actor model described in SPEC_FULL §5.
type Connection struct {
	netConn net.Conn
	reader  *frame.Reader
	log     logrus.FieldLogger

	writeMu sync.Mutex

	mu        sync.Mutex
	state     State
	table     *streamTable
	namedSink map[string]EventSink
	genSink   EventSink
	closeErr  error

	closeOnce sync.Once
	readerErr chan struct{}
}

// Dial opens a TCP connection to addr and performs the STARTUP
// handshake described in §4.F, resolving once the connection reaches
// Ready (including any AUTHENTICATE round trip and optional initial
// USE keyspace).
func Dial(ctx context.Context, addr string, opts Options) (*Connection, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CQLVersion == "" {
		opts.CQLVersion = defaultCQLVersion
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "conn: dial")
	}

	c := &Connection{
		netConn:   nc,
		reader:    frame.NewReader(nc),
		log:       opts.Logger,
		table:     newStreamTable(),
		namedSink: make(map[string]EventSink),
		state:     StateInit,
		readerErr: make(chan struct{}),
	}
	go c.readLoop()

	if err := c.startup(ctx, opts); err != nil {
		c.fail(err)
		return nil, err
	}
	return c, nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) startup(ctx context.Context, opts Options) error {
	c.setState(StateStarting)

	body := wire.New()
	body.PackStringMap(map[string]string{"CQL_VERSION": opts.CQLVersion})

	resp, err := c.send(ctx, frame.OpStartup, body.Bytes())
	if err != nil {
		return err
	}

	switch resp.opcode {
	case frame.OpReady:
		// fallthrough to keyspace selection below

	case frame.OpAuthenticate:
		c.setState(StateAuthenticating)
		className, err := wire.Wrap(resp.body).UnpackString()
		if err != nil {
			return &ProtocolError{Detail: "malformed AUTHENTICATE body", Cause: err}
		}
		if className != passwordAuthenticatorClass {
			return errors.Wrapf(ErrAuth, "unrecognised authenticator %q", className)
		}
		if opts.Credentials == nil {
			return errors.Wrap(ErrAuth, "server requires authentication but no credentials were configured")
		}
		credBody := wire.New()
		credBody.PackStringMap(opts.Credentials)
		credResp, err := c.send(ctx, frame.OpCredentials, credBody.Bytes())
		if err != nil {
			return err
		}
		if credResp.opcode != frame.OpReady {
			return &ProtocolError{Detail: "expected READY after CREDENTIALS, got " + credResp.opcode.String()}
		}

	default:
		return &ProtocolError{Detail: "expected READY or AUTHENTICATE after STARTUP, got " + resp.opcode.String()}
	}

	c.setState(StateReady)

	if opts.Keyspace != "" {
		if _, err := c.Query(ctx, "USE "+wire.QuoteIdentifier(opts.Keyspace)+";", wire.ConsistencyAny); err != nil {
			return errors.Wrap(err, "conn: selecting initial keyspace")
		}
	}
	return nil
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Options issues an OPTIONS request and returns the server's
// SUPPORTED option-name -> accepted-values map.
func (c *Connection) Options(ctx context.Context) (map[string][]string, error) {
	resp, err := c.send(ctx, frame.OpOptions, nil)
	if err != nil {
		return nil, err
	}
	if resp.opcode != frame.OpSupported {
		perr := &ProtocolError{Detail: "expected SUPPORTED, got " + resp.opcode.String()}
		c.fail(perr)
		return nil, perr
	}
	return wire.Wrap(resp.body).UnpackStringMultimap()
}

// Query issues a QUERY request and decodes the OPCODE_RESULT reply.
func (c *Connection) Query(ctx context.Context, cql string, consistency wire.Consistency) (*wire.Result, error) {
	b := wire.New()
	b.PackLongString(cql)
	b.PackShort(uint16(consistency))
	resp, err := c.send(ctx, frame.OpQuery, b.Bytes())
	if err != nil {
		return nil, err
	}
	return c.decodeResultResponse(resp)
}

// Prepare issues a PREPARE request and decodes the resulting
// ResultPrepared body. Building a re-executable handle around it is
// the cql package's responsibility (§4.G).
func (c *Connection) Prepare(ctx context.Context, cql string) (*wire.Result, error) {
	b := wire.New()
	b.PackLongString(cql)
	resp, err := c.send(ctx, frame.OpPrepare, b.Bytes())
	if err != nil {
		return nil, err
	}
	return c.decodeResultResponse(resp)
}

// Execute issues an EXECUTE request against a previously prepared
// statement id, with already-encoded positional bind values.
func (c *Connection) Execute(ctx context.Context, id []byte, values [][]byte, consistency wire.Consistency) (*wire.Result, error) {
	b := wire.New()
	b.PackShortBytes(id)
	b.PackShort(uint16(len(values)))
	for _, v := range values {
		b.PackBytes(v)
	}
	b.PackShort(uint16(consistency))
	resp, err := c.send(ctx, frame.OpExecute, b.Bytes())
	if err != nil {
		return nil, err
	}
	return c.decodeResultResponse(resp)
}

func (c *Connection) decodeResultResponse(resp response) (*wire.Result, error) {
	var perr *ProtocolError
	res, err := wire.DecodeResult(resp.body)
	switch {
	case resp.opcode != frame.OpResult:
		perr = &ProtocolError{Detail: "expected RESULT, got " + resp.opcode.String()}
	case err != nil:
		perr = &ProtocolError{Detail: "malformed RESULT body", Cause: err}
	case res.Kind < wire.ResultVoid || res.Kind > wire.ResultSchemaChange:
		perr = &ProtocolError{Detail: fmt.Sprintf("unknown result kind 0x%04x", int32(res.Kind))}
	}
	if perr != nil {
		c.fail(perr)
		return nil, perr
	}
	return res, nil
}

// Register subscribes to the given server event categories
// (EventTopologyChange, EventStatusChange, EventSchemaChange).
func (c *Connection) Register(ctx context.Context, eventNames []string) error {
	b := wire.New()
	b.PackStringList(eventNames)
	resp, err := c.send(ctx, frame.OpRegister, b.Bytes())
	if err != nil {
		return err
	}
	if resp.opcode != frame.OpReady {
		perr := &ProtocolError{Detail: "expected READY after REGISTER, got " + resp.opcode.String()}
		c.fail(perr)
		return perr
	}
	return nil
}

// SetEventSink registers a sink for a named event category. Events
// for unregistered categories fall through to the generic sink, if
// any, else are dropped.
func (c *Connection) SetEventSink(name string, sink EventSink) {
	c.mu.Lock()
	c.namedSink[name] = sink
	c.mu.Unlock()
}

// SetGenericEventSink registers a fallback sink for events with no
// named sink registered.
func (c *Connection) SetGenericEventSink(sink EventSink) {
	c.mu.Lock()
	c.genSink = sink
	c.mu.Unlock()
}

// send transmits opcode+body on a free stream, or queues it, and
// blocks until a response arrives, the connection fails, or ctx is
// canceled. Cancellation of a call still holding a stream slot leaves
// the slot reserved until the server's reply arrives and is
// discarded (§5); cancellation of a queued call removes it from the
// queue with no on-wire effect.
func (c *Connection) send(ctx context.Context, opcode frame.Opcode, body []byte) (response, error) {
	call := &call{opcode: opcode, body: body, respCh: make(chan response, 1)}

	// writeMu is held across allocation and transmission, but released
	// before waiting for the reply, so that while slots are available
	// the order calls acquire a stream id is the order their frames
	// hit the wire (§5), without serializing the whole round trip.
	// Locking it before mu fixes a single lock order with transmit's
	// other caller in dispatch, which only ever takes writeMu after
	// releasing mu.
	c.writeMu.Lock()

	c.mu.Lock()
	if c.state == StateClosed {
		err := ErrConnClosed
		if c.closeErr != nil {
			err = fmt.Errorf("%w: %w", ErrConnClosed, c.closeErr)
		}
		c.mu.Unlock()
		c.writeMu.Unlock()
		return response{}, err
	}
	id, ok := c.table.allocate(call)
	if !ok {
		c.table.enqueue(call)
	}
	c.mu.Unlock()

	if ok {
		buf := frame.BuildRequest(id, call.opcode, 0, call.body)
		_, err := c.netConn.Write(buf)
		c.writeMu.Unlock()
		if err != nil {
			c.fail(errors.Wrap(err, "conn: write"))
			return response{}, err
		}
	} else {
		c.writeMu.Unlock()
	}

	select {
	case resp := <-call.respCh:
		return resp, resp.err
	case <-ctx.Done():
		c.mu.Lock()
		call.canceled = true
		removed := c.table.removeQueued(call)
		c.mu.Unlock()
		if removed {
			return response{}, ErrCanceled
		}
		// Slot-holding call: leave it reserved, its eventual reply
		// will be discarded by the reader goroutine.
		return response{}, ErrCanceled
	}
}

func (c *Connection) transmit(id int8, call *call) error {
	buf := frame.BuildRequest(id, call.opcode, 0, call.body)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.netConn.Write(buf)
	return err
}

// readLoop owns the socket's read side and demultiplexes every
// incoming frame by stream id, per §4.E.
func (c *Connection) readLoop() {
	defer close(c.readerErr)
	for {
		f, err := c.reader.Next()
		if err != nil {
			if _, ok := err.(*frame.ErrBadVersion); ok {
				c.fail(errors.Wrap(ErrProtocol, err.Error()))
			} else {
				c.fail(errors.Wrap(ErrTransportClosed, err.Error()))
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *Connection) dispatch(f *frame.Frame) {
	id := f.Header.StreamID

	if id == 0 {
		if f.Header.Opcode == frame.OpError {
			c.fail(decodeServerError(f.Body))
		} else {
			c.log.WithField("opcode", f.Header.Opcode).Trace("conn: unsolicited message on stream 0 discarded")
		}
		return
	}

	if id == frame.EventStreamID {
		if f.Header.Opcode == frame.OpEvent {
			c.dispatchEvent(f.Body)
		} else {
			c.log.WithField("opcode", f.Header.Opcode).Trace("conn: unexpected message on event stream discarded")
		}
		return
	}

	c.mu.Lock()
	call := c.table.at(id)
	if call == nil {
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"stream": id, "opcode": f.Header.Opcode}).Trace("conn: response for unknown stream discarded")
		return
	}
	next := c.table.release(id)
	c.mu.Unlock()

	if !call.canceled {
		if f.Header.Opcode == frame.OpError {
			call.respCh <- response{err: decodeServerError(f.Body)}
		} else {
			call.respCh <- response{opcode: f.Header.Opcode, body: f.Body}
		}
	}

	if next != nil {
		if err := c.transmit(next.streamID, next); err != nil {
			c.fail(errors.Wrap(err, "conn: write"))
		}
	}
}

func (c *Connection) dispatchEvent(body []byte) {
	ev, err := decodeEvent(body)
	if err != nil {
		c.log.WithError(err).Warn("conn: malformed EVENT body discarded")
		return
	}
	c.mu.Lock()
	sink, ok := c.namedSink[ev.Name]
	if !ok {
		sink = c.genSink
	}
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	} else {
		c.log.WithField("event", ev.Name).Trace("conn: event dropped, no sink registered")
	}
}

func decodeServerError(body []byte) *ServerError {
	b := wire.Wrap(body)
	code, err := b.UnpackInt()
	if err != nil {
		return &ServerError{Code: -1, Message: "malformed ERROR body"}
	}
	msg, err := b.UnpackString()
	if err != nil {
		return &ServerError{Code: code, Message: "malformed ERROR body"}
	}
	return &ServerError{Code: code, Message: msg}
}

// fail marks the connection Closed and resolves every in-flight and
// queued call with err (§4.F failure policy, §8 property 8).
func (c *Connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.closeErr = err
		pending := c.table.all()
		c.mu.Unlock()

		for _, call := range pending {
			if !call.canceled {
				select {
				case call.respCh <- response{err: err}:
				default:
				}
			}
		}
		c.log.WithError(err).Warn("conn: connection closed")
		c.netConn.Close()
	})
}

// Close tears the connection down and fails every in-flight and
// queued request with ErrTransportClosed.
func (c *Connection) Close() error {
	c.fail(ErrTransportClosed)
	<-c.readerErr
	return nil
}

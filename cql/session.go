package cql

import (
	"context"
	"fmt"
	"sync"

	"github.com/burmanm/cassnet-client/conn"
)

// Event and EventSink are re-exported from conn so callers never need
// to import it directly.
type Event = conn.Event
type EventSink = conn.EventSink

const (
	EventTopologyChange = conn.EventTopologyChange
	EventStatusChange   = conn.EventStatusChange
	EventSchemaChange   = conn.EventSchemaChange
)

// Session is a single connection to a Cassandra node plus the
// prepared-statement cache and configuration used to open it.
type Session struct {
	cfg  *ClusterConfig
	conn *conn.Connection

	mu       sync.Mutex
	prepared map[string]*PreparedStatement
	closing  bool
}

// Connect dials cfg.Host:cfg.Port, performs the STARTUP handshake
// (including AUTHENTICATE and an optional initial USE keyspace), and
// returns a ready Session.
func Connect(ctx context.Context, cfg *ClusterConfig) (*Session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	c, err := conn.Dial(connectCtx, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), conn.Options{
		Credentials: cfg.Credentials,
		Keyspace:    cfg.Keyspace,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, conn: c, prepared: make(map[string]*PreparedStatement)}, nil
}

// Options returns the server's SUPPORTED option-name -> accepted
// values map.
func (s *Session) Options(ctx context.Context) (map[string][]string, error) {
	return s.conn.Options(ctx)
}

// Query begins a fluent query builder for cqlText, defaulting to the
// session's configured consistency level.
func (s *Session) Query(cqlText string) *Query {
	return &Query{session: s, cqlText: cqlText, consistency: s.cfg.DefaultConsistency}
}

// Prepare compiles cqlText on the server and returns a reusable
// handle. Repeated calls with the same text return the cached handle
// (§5's prepared-statement cache).
func (s *Session) Prepare(ctx context.Context, cqlText string) (*PreparedStatement, error) {
	s.mu.Lock()
	if existing, ok := s.prepared[cqlText]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	res, err := s.conn.Prepare(ctx, cqlText)
	if err != nil {
		return nil, err
	}
	if res.PreparedMetadata == nil || res.PreparedID == nil {
		return nil, fmt.Errorf("cql: server did not return a PREPARED result for %q", cqlText)
	}

	ps := &PreparedStatement{
		session:     s,
		cqlText:     cqlText,
		id:          res.PreparedID,
		metadata:    res.PreparedMetadata,
		consistency: s.cfg.DefaultConsistency,
	}

	s.mu.Lock()
	s.prepared[cqlText] = ps
	s.mu.Unlock()

	registerPreparedFinalizer(ps)
	return ps, nil
}

// evict removes cqlText from the prepared-statement cache. It is a
// no-op once the session has started closing, so a prepared handle
// finalized during process teardown cannot resurrect a dying session
// (§9 design notes).
func (s *Session) evict(cqlText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	delete(s.prepared, cqlText)
}

// Register subscribes to the given server event categories.
func (s *Session) Register(ctx context.Context, eventNames []string) error {
	return s.conn.Register(ctx, eventNames)
}

// SetEventSink registers a sink for a named event category
// (EventTopologyChange, EventStatusChange, EventSchemaChange).
func (s *Session) SetEventSink(name string, sink EventSink) {
	s.conn.SetEventSink(name, sink)
}

// SetGenericEventSink registers a fallback sink for events with no
// named sink registered.
func (s *Session) SetGenericEventSink(sink EventSink) {
	s.conn.SetGenericEventSink(sink)
}

// Close suppresses future prepared-statement eviction notifications
// and tears down the underlying connection, failing every in-flight
// and queued request.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	return s.conn.Close()
}

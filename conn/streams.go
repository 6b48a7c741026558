package conn

import "github.com/burmanm/cassnet-client/frame"

// maxStreams is the number of concurrent in-flight requests a single
// connection multiplexes (stream ids 1..127; 0 and 0xFF are reserved).
const maxStreams = 127

// response is what a completed call resolves to: either a decoded
// opcode+body pair, or a terminal error.
type response struct {
	opcode frame.Opcode
	body   []byte
	err    error
}

// call is one in-flight or queued request. respCh always has capacity
// 1 so the reader goroutine never blocks delivering a result.
type call struct {
	opcode   frame.Opcode
	body     []byte
	respCh   chan response
	canceled bool
	streamID int8 // set once assigned a slot; 0 while queued
}

// streamTable tracks which of the 127 usable stream ids are occupied
// and holds the FIFO of requests waiting for a free slot. It is only
// ever touched while Connection.mu is held.
type streamTable struct {
	slots [maxStreams + 1]*call // index 1..127 used, 0 unused
	queue []*call
}

func newStreamTable() *streamTable {
	return &streamTable{}
}

// allocate assigns the lowest free stream id to c and returns it, or
// returns false if none is free (caller must enqueue instead).
func (t *streamTable) allocate(c *call) (int8, bool) {
	for id := 1; id <= maxStreams; id++ {
		if t.slots[id] == nil {
			c.streamID = int8(id)
			t.slots[id] = c
			return int8(id), true
		}
	}
	return 0, false
}

// release frees id and, per §4.F, dequeues at most one pending call
// onto the freed slot, returning it so the caller can transmit it.
func (t *streamTable) release(id int8) *call {
	t.slots[id] = nil
	if len(t.queue) == 0 {
		return nil
	}
	next := t.queue[0]
	t.queue = t.queue[1:]
	next.streamID = id
	t.slots[id] = next
	return next
}

func (t *streamTable) enqueue(c *call) {
	t.queue = append(t.queue, c)
}

// removeQueued removes c from the pending queue if still present,
// used by cancellation of an unsent call. Returns true if it was
// found and removed.
func (t *streamTable) removeQueued(c *call) bool {
	for i, q := range t.queue {
		if q == c {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return true
		}
	}
	return false
}

// at returns the call occupying id, or nil.
func (t *streamTable) at(id int8) *call {
	if id < 1 || id > maxStreams {
		return nil
	}
	return t.slots[id]
}

// all returns every call currently occupying a slot or waiting in the
// queue, used for fatal-error fan-out.
func (t *streamTable) all() []*call {
	out := make([]*call, 0, maxStreams)
	for _, c := range t.slots {
		if c != nil {
			out = append(out, c)
		}
	}
	out = append(out, t.queue...)
	return out
}

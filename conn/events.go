package conn

import "github.com/burmanm/cassnet-client/wire"

// Event names accepted by REGISTER (§4.F).
const (
	EventTopologyChange = "TOPOLOGY_CHANGE"
	EventStatusChange   = "STATUS_CHANGE"
	EventSchemaChange   = "SCHEMA_CHANGE"
)

// Event is the decoded payload of an OPCODE_EVENT message.
type Event struct {
	Name string

	// TOPOLOGY_CHANGE / STATUS_CHANGE
	ChangeType string
	NodeAddr   []byte
	NodePort   int32

	// SCHEMA_CHANGE
	SchemaChangeType string
	Keyspace         string
	Table            string
}

// EventSink receives decoded events. Sinks are invoked on the
// connection's reader goroutine and must not block.
type EventSink func(Event)

func decodeEvent(body []byte) (Event, error) {
	b := wire.Wrap(body)
	name, err := b.UnpackString()
	if err != nil {
		return Event{}, err
	}
	ev := Event{Name: name}
	switch name {
	case EventTopologyChange, EventStatusChange:
		ev.ChangeType, err = b.UnpackString()
		if err != nil {
			return Event{}, err
		}
		ev.NodeAddr, ev.NodePort, err = b.UnpackInet()
		if err != nil {
			return Event{}, err
		}
	case EventSchemaChange:
		ev.SchemaChangeType, err = b.UnpackString()
		if err != nil {
			return Event{}, err
		}
		ev.Keyspace, err = b.UnpackString()
		if err != nil {
			return Event{}, err
		}
		ev.Table, err = b.UnpackString()
		if err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

package wire

import "fmt"

// ResultKind is the four-byte tag at the start of an OPCODE_RESULT
// body.
type ResultKind int32

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)

// Result is the tagged union produced by decoding an OPCODE_RESULT
// body. Exactly one of the typed fields is meaningful, selected by
// Kind.
type Result struct {
	Kind ResultKind

	Rows *RowsResult

	Keyspace string // ResultSetKeyspace

	PreparedID       []byte // ResultPrepared
	PreparedMetadata *Metadata

	SchemaChangeType string // ResultSchemaChange
	SchemaKeyspace   string
	SchemaTable      string

	UnknownKind ResultKind
	UnknownBody []byte
}

// RowsResult holds a decoded ResultRows body: the column metadata and
// each row's raw per-column bytes (nil entries denote SQL null).
type RowsResult struct {
	Metadata *Metadata
	Rows     [][][]byte
}

// Row decodes row i into typed Go values via the metadata's codecs.
func (r *RowsResult) Row(i int) ([]interface{}, error) {
	return r.Metadata.DecodeRow(r.Rows[i])
}

// DecodeResult parses an OPCODE_RESULT body.
func DecodeResult(body []byte) (*Result, error) {
	b := Wrap(body)
	kind, err := b.UnpackInt()
	if err != nil {
		return nil, fmt.Errorf("wire: result kind: %w", err)
	}

	switch ResultKind(kind) {
	case ResultVoid:
		return &Result{Kind: ResultVoid}, nil

	case ResultRows:
		meta, err := ReadMetadata(b)
		if err != nil {
			return nil, fmt.Errorf("wire: rows metadata: %w", err)
		}
		rowCount, err := b.UnpackInt()
		if err != nil {
			return nil, fmt.Errorf("wire: row count: %w", err)
		}
		rows := make([][][]byte, rowCount)
		for i := range rows {
			row := make([][]byte, meta.Count())
			for c := range row {
				row[c], err = b.UnpackBytes()
				if err != nil {
					return nil, fmt.Errorf("wire: row %d column %d: %w", i, c, err)
				}
			}
			rows[i] = row
		}
		return &Result{Kind: ResultRows, Rows: &RowsResult{Metadata: meta, Rows: rows}}, nil

	case ResultSetKeyspace:
		ks, err := b.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("wire: keyspace name: %w", err)
		}
		return &Result{Kind: ResultSetKeyspace, Keyspace: ks}, nil

	case ResultPrepared:
		id, err := b.UnpackShortBytes()
		if err != nil {
			return nil, fmt.Errorf("wire: prepared id: %w", err)
		}
		meta, err := ReadMetadata(b)
		if err != nil {
			return nil, fmt.Errorf("wire: prepared metadata: %w", err)
		}
		return &Result{Kind: ResultPrepared, PreparedID: id, PreparedMetadata: meta}, nil

	case ResultSchemaChange:
		changeType, err := b.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("wire: schema change type: %w", err)
		}
		ks, err := b.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("wire: schema change keyspace: %w", err)
		}
		table, err := b.UnpackString()
		if err != nil {
			return nil, fmt.Errorf("wire: schema change table: %w", err)
		}
		return &Result{Kind: ResultSchemaChange, SchemaChangeType: changeType, SchemaKeyspace: ks, SchemaTable: table}, nil

	default:
		return &Result{Kind: ResultKind(kind), UnknownKind: ResultKind(kind), UnknownBody: b.Bytes()}, nil
	}
}

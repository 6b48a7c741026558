package wire

import "fmt"

const globalTableSpecFlag = 0x0001

// Column is one column descriptor within a Metadata set.
type Column struct {
	Keyspace string
	Table    string
	Name     string
	Type     ColumnType

	shortName string
}

// Metadata is an ordered set of column descriptors with a
// disambiguated short name computed per column (§4.C).
type Metadata struct {
	GlobalTableSpec bool
	Columns         []Column
}

// ReadMetadata parses a metadata block: flags, column count, an
// optional global (keyspace, table) pair, then per-column descriptors.
func ReadMetadata(b *Buffer) (*Metadata, error) {
	flags, err := b.UnpackInt()
	if err != nil {
		return nil, err
	}
	count, err := b.UnpackInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("wire: negative column count %d", count)
	}

	m := &Metadata{
		GlobalTableSpec: flags&globalTableSpecFlag != 0,
		Columns:         make([]Column, count),
	}

	var globalKeyspace, globalTable string
	if m.GlobalTableSpec {
		globalKeyspace, err = b.UnpackString()
		if err != nil {
			return nil, err
		}
		globalTable, err = b.UnpackString()
		if err != nil {
			return nil, err
		}
	}

	for i := range m.Columns {
		col := &m.Columns[i]
		if m.GlobalTableSpec {
			col.Keyspace, col.Table = globalKeyspace, globalTable
		} else {
			col.Keyspace, err = b.UnpackString()
			if err != nil {
				return nil, err
			}
			col.Table, err = b.UnpackString()
			if err != nil {
				return nil, err
			}
		}
		col.Name, err = b.UnpackString()
		if err != nil {
			return nil, err
		}
		col.Type, err = ReadColumnType(b)
		if err != nil {
			return nil, err
		}
	}

	m.computeShortNames()
	return m, nil
}

// WriteMetadata appends a metadata block in the same wire form
// ReadMetadata parses.
func WriteMetadata(b *Buffer, m *Metadata) {
	var flags int32
	if m.GlobalTableSpec {
		flags |= globalTableSpecFlag
	}
	b.PackInt(flags)
	b.PackInt(int32(len(m.Columns)))
	if m.GlobalTableSpec && len(m.Columns) > 0 {
		b.PackString(m.Columns[0].Keyspace)
		b.PackString(m.Columns[0].Table)
	}
	for _, c := range m.Columns {
		if !m.GlobalTableSpec {
			b.PackString(c.Keyspace)
			b.PackString(c.Table)
		}
		b.PackString(c.Name)
		WriteColumnType(b, c.Type)
	}
}

// computeShortNames performs the disambiguation pass, in linear time
// over per-name and per-table.column counts: a column's short name is its bare name if unique; else table.column
// if that pair is unique; else keyspace.table.column.
func (m *Metadata) computeShortNames() {
	nameCount := map[string]int{}
	tableColCount := map[string]int{}
	for _, c := range m.Columns {
		nameCount[c.Name]++
		tableColCount[c.Table+"."+c.Name]++
	}
	for i := range m.Columns {
		c := &m.Columns[i]
		switch {
		case nameCount[c.Name] == 1:
			c.shortName = c.Name
		case tableColCount[c.Table+"."+c.Name] == 1:
			c.shortName = c.Table + "." + c.Name
		default:
			c.shortName = c.Keyspace + "." + c.Table + "." + c.Name
		}
	}
}

// Count returns the number of columns.
func (m *Metadata) Count() int {
	return len(m.Columns)
}

// ColumnName returns the fully-qualified dotted name of column i.
func (m *Metadata) ColumnName(i int) string {
	c := m.Columns[i]
	return c.Keyspace + "." + c.Table + "." + c.Name
}

// ColumnShortName returns the disambiguated short name of column i.
func (m *Metadata) ColumnShortName(i int) string {
	return m.Columns[i].shortName
}

// ColumnType returns the type descriptor of column i.
func (m *Metadata) ColumnType(i int) ColumnType {
	return m.Columns[i].Type
}

// FindColumn returns the index of the column matching name, trying
// the short name first, then the bare column name. It returns -1 if
// no column matches.
func (m *Metadata) FindColumn(name string) int {
	for i, c := range m.Columns {
		if c.shortName == name {
			return i
		}
	}
	for i, c := range m.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// EncodeRow encodes a positional sequence of Go values into the
// per-column wire bytes ([bytes], nil for null). len(values) must
// equal Count().
func (m *Metadata) EncodeRow(values []interface{}) ([][]byte, error) {
	if len(values) != len(m.Columns) {
		return nil, fmt.Errorf("wire: %d values for %d columns", len(values), len(m.Columns))
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		b, err := Encode(m.Columns[i].Type.ID, v)
		if err != nil {
			return nil, fmt.Errorf("wire: column %s: %w", m.Columns[i].shortName, err)
		}
		out[i] = b
	}
	return out, nil
}

// DecodeRow decodes one row's raw column bytes into Go values, nil
// for null columns.
func (m *Metadata) DecodeRow(raw [][]byte) ([]interface{}, error) {
	if len(raw) != len(m.Columns) {
		return nil, fmt.Errorf("wire: %d values for %d columns", len(raw), len(m.Columns))
	}
	out := make([]interface{}, len(raw))
	for i, b := range raw {
		if b == nil {
			continue
		}
		v, err := Decode(m.Columns[i].Type.ID, b)
		if err != nil {
			return nil, fmt.Errorf("wire: column %s: %w", m.Columns[i].shortName, err)
		}
		out[i] = v
	}
	return out, nil
}

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetadataShortNames exercises spec §8 scenario S8: a global-table-spec
// metadata block for test.table with columns key, i, b, all
// disambiguating to their bare names.
func TestMetadataShortNames(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x01, // flags = 1 (global table spec)
		0x00, 0x00, 0x00, 0x03, // column count = 3

		0x00, 0x04, 't', 'e', 's', 't', // global keyspace "test"
		0x00, 0x05, 't', 'a', 'b', 'l', 'e', // global table "table"

		0x00, 0x03, 'k', 'e', 'y', 0x00, 0x0a, // key TEXT
		0x00, 0x01, 'i', 0x00, 0x09, // i INT
		0x00, 0x01, 'b', 0x00, 0x02, // b BIGINT
	}

	m, err := ReadMetadata(Wrap(raw))
	require.NoError(t, err)
	require.Equal(t, 3, m.Count())
	assert.True(t, m.GlobalTableSpec)

	seen := map[string]bool{}
	for i := 0; i < m.Count(); i++ {
		sn := m.ColumnShortName(i)
		assert.False(t, seen[sn], "duplicate short name %q", sn)
		seen[sn] = true
	}
	assert.Equal(t, "key", m.ColumnShortName(0))
	assert.Equal(t, "i", m.ColumnShortName(1))
	assert.Equal(t, "b", m.ColumnShortName(2))
	assert.Equal(t, TypeText, m.ColumnType(0).ID)
	assert.Equal(t, TypeInt, m.ColumnType(1).ID)
	assert.Equal(t, TypeBigInt, m.ColumnType(2).ID)
}

func TestMetadataShortNameDisambiguation(t *testing.T) {
	m := &Metadata{Columns: []Column{
		{Keyspace: "ks", Table: "t1", Name: "id"},
		{Keyspace: "ks", Table: "t2", Name: "id"},
		{Keyspace: "ks2", Table: "t2", Name: "id"},
	}}
	m.computeShortNames()

	assert.Equal(t, "t1.id", m.ColumnShortName(0))
	assert.Equal(t, "ks.t2.id", m.ColumnShortName(1))
	assert.Equal(t, "ks2.t2.id", m.ColumnShortName(2))
}

func TestMetadataGlobalTableSpecRoundTrip(t *testing.T) {
	m := &Metadata{
		GlobalTableSpec: true,
		Columns: []Column{
			{Keyspace: "test", Table: "c", Name: "a", Type: ColumnType{ID: TypeVarchar}},
			{Keyspace: "test", Table: "c", Name: "b", Type: ColumnType{ID: TypeInt}},
		},
	}
	m.computeShortNames()

	b := New()
	WriteMetadata(b, m)

	got, err := ReadMetadata(Wrap(b.Bytes()))
	require.NoError(t, err)
	assert.True(t, got.GlobalTableSpec)
	require.Equal(t, 2, got.Count())
	assert.Equal(t, "test.c.a", got.ColumnName(0))
	assert.Equal(t, "a", got.ColumnShortName(0))
	assert.Equal(t, TypeInt, got.ColumnType(1).ID)
}

func TestMetadataFindColumn(t *testing.T) {
	m := &Metadata{Columns: []Column{
		{Keyspace: "ks", Table: "t", Name: "a", Type: ColumnType{ID: TypeVarchar}},
	}}
	m.computeShortNames()
	assert.Equal(t, 0, m.FindColumn("a"))
	assert.Equal(t, -1, m.FindColumn("missing"))
}

func TestMetadataEncodeDecodeRow(t *testing.T) {
	m := &Metadata{Columns: []Column{
		{Name: "a", Type: ColumnType{ID: TypeVarchar}},
		{Name: "b", Type: ColumnType{ID: TypeInt}},
	}}
	m.computeShortNames()

	raw, err := m.EncodeRow([]interface{}{"hello", int64(100)})
	require.NoError(t, err)
	require.Len(t, raw, 2)

	values, err := m.DecodeRow(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", values[0])
	assert.Equal(t, int32(100), values[1])
}

func TestMetadataEncodeRowLengthMismatch(t *testing.T) {
	m := &Metadata{Columns: []Column{{Name: "a", Type: ColumnType{ID: TypeVarchar}}}}
	m.computeShortNames()
	_, err := m.EncodeRow([]interface{}{"a", "b"})
	assert.Error(t, err)
}

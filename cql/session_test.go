package cql_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burmanm/cassnet-client/cql"
	"github.com/burmanm/cassnet-client/internal/testserver"
	"github.com/burmanm/cassnet-client/wire"
)

func connect(t *testing.T, srv *testserver.Server, addr string) *cql.Session {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := cql.NewClusterConfig(host, cql.WithPort(port), cql.WithTimeout(2*time.Second, 2*time.Second))
	s, err := cql.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestPreparedExecuteByName exercises spec S7: prepare an INSERT with
// two bind markers, then execute it by name.
func TestPreparedExecuteByName(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()

	srv.OnPrepare = func(cqlText string) ([]byte, *wire.Metadata) {
		meta := &wire.Metadata{
			GlobalTableSpec: true,
			Columns: []wire.Column{
				{Keyspace: "ks", Table: "tbl1", Name: "key", Type: wire.ColumnType{ID: wire.TypeVarchar}},
				{Keyspace: "ks", Table: "tbl1", Name: "i1", Type: wire.ColumnType{ID: wire.TypeInt}},
			},
		}
		return []byte{0xAA, 0xBB}, meta
	}

	var capturedValues [][]byte
	srv.OnExecute = func(id []byte, values [][]byte) ([]byte, *testserver.ServerErr) {
		capturedValues = values
		b := wire.New()
		b.PackInt(int32(wire.ResultVoid))
		return b.Bytes(), nil
	}

	s := connect(t, srv, addr)
	ps, err := s.Prepare(context.Background(), "INSERT INTO tbl1 (key, i1) VALUES (?, ?);")
	require.NoError(t, err)
	assert.Equal(t, 2, ps.ParameterCount())

	res, err := ps.Execute(context.Background(), map[string]interface{}{
		"key": "another-key",
		"i1":  int64(123456789),
	})
	require.NoError(t, err)
	assert.Equal(t, wire.ResultVoid, res.Kind)

	require.Len(t, capturedValues, 2)
	assert.Equal(t, []byte("another-key"), capturedValues[0])
	assert.Equal(t, []byte{0x07, 0x5B, 0xCD, 0x15}, capturedValues[1])
}

func TestPreparedStatementCaching(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()

	prepareCalls := 0
	srv.OnPrepare = func(cqlText string) ([]byte, *wire.Metadata) {
		prepareCalls++
		return []byte{0x01}, &wire.Metadata{}
	}

	s := connect(t, srv, addr)
	ps1, err := s.Prepare(context.Background(), "SELECT 1;")
	require.NoError(t, err)
	ps2, err := s.Prepare(context.Background(), "SELECT 1;")
	require.NoError(t, err)

	assert.Same(t, ps1, ps2)
	assert.Equal(t, 1, prepareCalls)
}

func TestPreparedExecuteUnknownBindingName(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.OnPrepare = func(cqlText string) ([]byte, *wire.Metadata) {
		return []byte{0x01}, &wire.Metadata{Columns: []wire.Column{
			{Name: "a", Type: wire.ColumnType{ID: wire.TypeVarchar}},
		}}
	}

	s := connect(t, srv, addr)
	ps, err := s.Prepare(context.Background(), "SELECT ?;")
	require.NoError(t, err)

	_, err = ps.Execute(context.Background(), map[string]interface{}{"nope": "x"})
	require.Error(t, err)
	var bindErr *cql.BindingError
	assert.ErrorAs(t, err, &bindErr)
}

func TestQueryFluentBuilder(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.OnQuery = func(cqlText string) ([]byte, *testserver.ServerErr) {
		b := wire.New()
		b.PackInt(int32(wire.ResultSetKeyspace))
		b.PackString("test")
		return b.Bytes(), nil
	}

	s := connect(t, srv, addr)
	res, err := s.Query("USE test;").Consistency(wire.ConsistencyAny).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.ResultSetKeyspace, res.Kind)
	assert.Equal(t, "test", res.Keyspace)
}

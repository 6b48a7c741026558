package conn_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burmanm/cassnet-client/conn"
	"github.com/burmanm/cassnet-client/internal/testserver"
	"github.com/burmanm/cassnet-client/wire"
)

func dial(t *testing.T, srv *testserver.Server, addr string, opts conn.Options) *conn.Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := conn.Dial(ctx, addr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialReachesReady(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()

	c := dial(t, srv, addr, conn.Options{})
	assert.Equal(t, conn.StateReady, c.State())
}

func TestOptionsReturnsSupportedMap(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.Supported = map[string][]string{"COMPRESSION": {"snappy"}, "CQL_VERSION": {"3.0.0"}}

	c := dial(t, srv, addr, conn.Options{})
	got, err := c.Options(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.Supported, got)
}

func TestQueryVoidResult(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.OnQuery = func(cqlText string) ([]byte, *testserver.ServerErr) {
		b := wire.New()
		b.PackInt(int32(wire.ResultVoid))
		return b.Bytes(), nil
	}

	c := dial(t, srv, addr, conn.Options{})
	res, err := c.Query(context.Background(), "INSERT INTO things (name) VALUES ('thing');", wire.ConsistencyAny)
	require.NoError(t, err)
	assert.Equal(t, wire.ResultVoid, res.Kind)
}

func TestQueryServerErrorFailsOnlyThatCall(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.OnQuery = func(cqlText string) ([]byte, *testserver.ServerErr) {
		return nil, &testserver.ServerErr{Code: 0x2200, Message: "invalid query"}
	}

	c := dial(t, srv, addr, conn.Options{})
	_, err = c.Query(context.Background(), "SELECT * FROM bogus;", wire.ConsistencyOne)
	require.Error(t, err)
	var serverErr *conn.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.EqualValues(t, 0x2200, serverErr.Code)

	// Connection survives a per-request server error.
	assert.Equal(t, conn.StateReady, c.State())
}

func TestAuthenticateWithWrongClassFails(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.AuthenticatorClass = "com.example.SomeOtherAuthenticator"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = conn.Dial(ctx, addr, conn.Options{Credentials: map[string]string{"username": "u", "password": "p"}})
	require.ErrorIs(t, err, conn.ErrAuth)
}

func TestAuthenticateWithCredentialsSucceeds(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()
	srv.AuthenticatorClass = "org.apache.cassandra.auth.PasswordAuthenticator"
	srv.ExpectCredentials = map[string]string{"username": "alice", "password": "secret"}

	c := dial(t, srv, addr, conn.Options{Credentials: srv.ExpectCredentials})
	assert.Equal(t, conn.StateReady, c.State())
}

func TestConcurrentRequestsQueueBeyond127(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	srv.OnQuery = func(cqlText string) ([]byte, *testserver.ServerErr) {
		<-release
		mu.Lock()
		order = append(order, cqlText)
		mu.Unlock()
		b := wire.New()
		b.PackInt(int32(wire.ResultVoid))
		return b.Bytes(), nil
	}

	c := dial(t, srv, addr, conn.Options{})

	const total = 130
	results := make(chan error, total)
	for i := 0; i < total; i++ {
		go func(i int) {
			_, err := c.Query(context.Background(), "Q", wire.ConsistencyOne)
			results <- err
		}(i)
	}

	// Give the client time to allocate the first 127 streams and queue
	// the rest, then release the server to answer everything.
	time.Sleep(200 * time.Millisecond)
	close(release)

	for i := 0; i < total; i++ {
		require.NoError(t, <-results)
	}
}

func TestFatalTransportCloseFailsAllInFlight(t *testing.T) {
	srv, addr, err := testserver.Listen()
	require.NoError(t, err)
	defer srv.Close()

	block := make(chan struct{})
	srv.OnQuery = func(cqlText string) ([]byte, *testserver.ServerErr) {
		<-block
		return nil, &testserver.ServerErr{Code: 0, Message: "unreachable"}
	}

	c := dial(t, srv, addr, conn.Options{})

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Query(context.Background(), "Q", wire.ConsistencyOne)
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)

	// Simulate a connection-fatal event: close the server side without
	// ever answering, forcing the client's read loop to observe EOF.
	srv.Close()

	for i := 0; i < 3; i++ {
		err := <-errs
		require.Error(t, err)
	}
	assert.Equal(t, conn.StateClosed, c.State())

	// Any request submitted after closure resolves immediately.
	_, err = c.Query(context.Background(), "Q", wire.ConsistencyOne)
	require.Error(t, err)
	close(block)
}

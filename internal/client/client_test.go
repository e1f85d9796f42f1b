package client

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/ohuakv/internal/config"
	"github.com/danmuck/ohuakv/internal/mockserver"
	"github.com/danmuck/ohuakv/internal/protocol"
	"github.com/danmuck/ohuakv/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMock(t *testing.T, opts ...mockserver.Option) *mockserver.Server {
	t.Helper()
	srv := mockserver.New(opts...)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Close()
	})
	return srv
}

func clientFor(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := net.LookupPort("tcp", port)
	require.NoError(t, err)
	c, err := New(config.ClientConfig{Host: host, Port: p, Timeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return c
}

// countingDialer records dials and closes of the connections it hands out.
type countingDialer struct {
	inner  net.Dialer
	dials  atomic.Int64
	closes atomic.Int64
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials.Add(1)
	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: conn, closes: &d.closes}, nil
}

type countingConn struct {
	net.Conn
	closes *atomic.Int64
	once   sync.Once
}

func (c *countingConn) Close() error {
	c.once.Do(func() { c.closes.Add(1) })
	return c.Conn.Close()
}

func TestInsertSendsWriteEnvelope(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t, mockserver.WithHandler(mockserver.Static("OK")))
	c := clientFor(t, srv.Addr())

	err := c.Insert(context.Background(), "usertable", "user1", map[string]string{"field0": "val0"})
	require.NoError(t, err)

	received := srv.Received()
	require.Len(t, received, 1)
	assert.Equal(t, `{"Write":{"table":"usertable","key":"usertable-user1","value":{"field0":"val0"}}}`, string(received[0].Raw))
}

func TestReadOmitsNullFields(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t, mockserver.WithHandler(mockserver.Static(`{"value":{"field0":"val0","field1":null}}`)))
	c := clientFor(t, srv.Addr())

	record, err := c.Read(context.Background(), "usertable", "user1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"field0": "val0"}, record)

	received := srv.Received()
	require.Len(t, received, 1)
	assert.Equal(t, `{"Read":{"table":"usertable","key":"usertable-user1"}}`, string(received[0].Raw))
}

func TestReadFieldFilter(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t, mockserver.WithHandler(mockserver.Static(`{"value":{"a":"1","b":"2","c":"3"}}`)))
	c := clientFor(t, srv.Addr())

	record, err := c.Read(context.Background(), "t", "k", []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, record)

	record, err = c.Read(context.Background(), "t", "k", []string{})
	require.NoError(t, err)
	assert.Len(t, record, 3)
}

func TestStoreRoundTripUsesSameQualifiedKey(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t)
	c := clientFor(t, srv.Addr())
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "usertable", "user7", map[string]string{"field0": "a", "field1": "b"}))
	require.NoError(t, c.Update(ctx, "usertable", "user7", map[string]string{"field1": "c"}))

	record, err := c.Read(ctx, "usertable", "user7", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"field0": "a", "field1": "c"}, record)

	_, ok := srv.Store().Get("usertable-user7")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "usertable", "user7"))
	record, err = c.Read(ctx, "usertable", "user7", nil)
	require.NoError(t, err)
	assert.Empty(t, record)
}

func TestMutationsRequireExactOK(t *testing.T) {
	testlog.Start(t)
	for _, reply := range []string{"", "ok", "OK\n", "ERR not found"} {
		srv := startMock(t, mockserver.WithHandler(mockserver.Static(reply)))
		c := clientFor(t, srv.Addr())

		err := c.Delete(context.Background(), "t", "k")
		require.Error(t, err, "reply=%q", reply)
		assert.ErrorIs(t, err, protocol.ErrNotOK)

		var respErr *protocol.ResponseError
		require.True(t, errors.As(err, &respErr))
		assert.Equal(t, reply, respErr.Response)
		assert.Equal(t, "t-k", respErr.Key)
	}
}

func TestReadMalformedReply(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t, mockserver.WithHandler(mockserver.Static(`{"nope":1}`)))
	c := clientFor(t, srv.Addr())

	_, err := c.Read(context.Background(), "t", "k", nil)
	assert.ErrorIs(t, err, protocol.ErrMissingValueField)

	var respErr *protocol.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, `{"nope":1}`, respErr.Response)
}

func TestConnectionRefused(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := clientFor(t, addr)
	ctx := context.Background()
	errs := []error{
		c.Insert(ctx, "t", "k", map[string]string{"a": "b"}),
		c.Update(ctx, "t", "k", map[string]string{"a": "b"}),
		c.Delete(ctx, "t", "k"),
	}
	_, readErr := c.Read(ctx, "t", "k", nil)
	errs = append(errs, readErr)

	for _, err := range errs {
		var tErr *TransportError
		require.True(t, errors.As(err, &tErr), "got %v", err)
		assert.Equal(t, StageDial, tErr.Stage)
		assert.Equal(t, "t-k", tErr.Key)
	}
}

func TestScanNeverDials(t *testing.T) {
	dialer := &countingDialer{}
	c, err := New(config.DefaultClientConfig(), WithDialer(dialer))
	require.NoError(t, err)

	rows, err := c.Scan(context.Background(), "usertable", "user1", 10, []string{"field0"})
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Zero(t, dialer.dials.Load())
}

func TestInvalidInputsNeverDial(t *testing.T) {
	dialer := &countingDialer{}
	c, err := New(config.DefaultClientConfig(), WithDialer(dialer))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Read(ctx, "t", "", nil)
	assert.ErrorIs(t, err, protocol.ErrMissingKey)
	assert.ErrorIs(t, c.Delete(ctx, "", "k"), protocol.ErrMissingTable)
	assert.ErrorIs(t, c.Update(ctx, "t", "k", nil), protocol.ErrMissingValue)
	assert.Zero(t, dialer.dials.Load())
}

func TestInvalidUTF8KeysNeverDial(t *testing.T) {
	dialer := &countingDialer{}
	c, err := New(config.DefaultClientConfig(), WithDialer(dialer))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Read(ctx, "usertable", "\xff", nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidUTF8)
	err = c.Insert(ctx, "usertable", "\xfe", map[string]string{"f": "v"})
	assert.ErrorIs(t, err, protocol.ErrInvalidUTF8)
	assert.ErrorIs(t, c.Delete(ctx, "bad\xc3", "k"), protocol.ErrInvalidUTF8)
	assert.Zero(t, dialer.dials.Load())
}

func TestWhitespaceKeySentVerbatim(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t)
	c := clientFor(t, srv.Addr())
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "usertable", " ", map[string]string{"field0": "v"}))
	_, ok := srv.Store().Get("usertable- ")
	require.True(t, ok)

	require.NoError(t, c.Delete(ctx, "usertable", " "))
	_, ok = srv.Store().Get("usertable- ")
	assert.False(t, ok)
	assert.EqualValues(t, 1, srv.Count(protocol.OpDelete))
}

func TestEveryExchangeClosesItsConnection(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t, mockserver.WithHandler(func(req protocol.Request) []byte {
		if req.Op == protocol.OpDelete {
			return []byte("ERR refused")
		}
		if req.Op == protocol.OpRead {
			return []byte("not json")
		}
		return []byte("OK")
	}))
	dialer := &countingDialer{}
	c := clientFor(t, srv.Addr(), WithDialer(dialer))
	ctx := context.Background()

	assert.NoError(t, c.Insert(ctx, "t", "k", map[string]string{"a": "b"}))
	assert.Error(t, c.Delete(ctx, "t", "k"))
	_, err := c.Read(ctx, "t", "k", nil)
	assert.Error(t, err)

	assert.EqualValues(t, 3, dialer.dials.Load())
	assert.EqualValues(t, 3, dialer.closes.Load())
}

func TestTimeoutBoundsSilentServer(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := net.LookupPort("tcp", port)
	c, err := New(config.ClientConfig{Host: host, Port: p, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = c.Delete(context.Background(), "t", "k")
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr), "got %v", err)
	assert.Equal(t, StageRead, tErr.Stage)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestContextCancelUnblocksRead(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := net.LookupPort("tcp", port)
	c, err := New(config.ClientConfig{Host: host, Port: p})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err = c.Read(ctx, "t", "k", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHalfCloseForEOFFramedServer(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		payload, _ := io.ReadAll(conn)
		got <- string(payload)
		_, _ = conn.Write([]byte("OK"))
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := net.LookupPort("tcp", port)
	c, err := New(config.ClientConfig{Host: host, Port: p, Timeout: 5 * time.Second, HalfClose: true})
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), "t", "k"))
	assert.Equal(t, `{"Delete":{"table":"t","key":"t-k"}}`, <-got)
}

func TestConcurrentCallsAreIsolated(t *testing.T) {
	testlog.Start(t)
	srv := startMock(t)
	c := clientFor(t, srv.Addr())
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "user" + string(rune('a'+i))
			if err := c.Insert(ctx, "usertable", key, map[string]string{"field0": key}); err != nil {
				errs <- err
				return
			}
			record, err := c.Read(ctx, "usertable", key, nil)
			if err != nil {
				errs <- err
				return
			}
			if record["field0"] != key {
				errs <- errors.New("cross-talk for " + key)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
	assert.Equal(t, workers, srv.Store().Len())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(config.ClientConfig{Host: "h", Port: 70000})
	assert.Error(t, err)

	c, err := New(config.ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "localhost:12943", c.Addr())
}

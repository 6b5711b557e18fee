package rpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-secretmesh/internal/core/muxer"
)

var errTestSentinel = errors.New("test sentinel")

func init() {
	RegisterErrorCode("test_sentinel", errTestSentinel)
}

type echoParams struct {
	Text string `msgpack:"text"`
}

func startServer(t *testing.T, srv *Server) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
		_ = srv.Close()
	})
	return ln.Addr()
}

func dialClient(t *testing.T, addr net.Addr) *Client {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	c, err := NewClient(conn, muxer.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestServer() *Server {
	srv := NewServer(muxer.DefaultConfig(), 5*time.Second)
	srv.Register("echo", func(_ context.Context, call *Call) (any, error) {
		var p echoParams
		if err := call.Decode(&p); err != nil {
			return nil, err
		}
		return echoParams{Text: p.Text + "|" + call.Remote.String()}, nil
	})
	srv.Register("fail", func(context.Context, *Call) (any, error) {
		return nil, errTestSentinel
	})
	srv.Register("block", func(ctx context.Context, _ *Call) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return srv
}

// TestCall_Echo 请求与响应往返，处理器可以看到调用方地址
func TestCall_Echo(t *testing.T) {
	addr := startServer(t, newTestServer())
	c := dialClient(t, addr)

	var out echoParams
	require.NoError(t, c.Call(context.Background(), "echo", echoParams{Text: "hi"}, &out))
	assert.Contains(t, out.Text, "hi|127.0.0.1:")

	// 同一会话上多次调用
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Call(context.Background(), "echo", echoParams{Text: "x"}, nil))
	}
}

// TestCall_RemoteErrorMapsToSentinel 已登记错误码还原为哨兵
func TestCall_RemoteErrorMapsToSentinel(t *testing.T) {
	c := dialClient(t, startServer(t, newTestServer()))

	err := c.Call(context.Background(), "fail", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTestSentinel)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "test_sentinel", re.Code)
}

// TestCall_MethodNotFound 未注册的方法
func TestCall_MethodNotFound(t *testing.T) {
	c := dialClient(t, startServer(t, newTestServer()))

	err := c.Call(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

// TestCall_BadParams 参数类型不匹配
func TestCall_BadParams(t *testing.T) {
	c := dialClient(t, startServer(t, newTestServer()))

	err := c.Call(context.Background(), "echo", "not a struct", nil)
	assert.ErrorIs(t, err, ErrBadRequest)
}

// TestCall_UnknownErrorCode 未登记的错误只保留消息
func TestCall_UnknownErrorCode(t *testing.T) {
	srv := newTestServer()
	srv.Register("plain", func(context.Context, *Call) (any, error) {
		return nil, errors.New("boom")
	})
	c := dialClient(t, startServer(t, srv))

	err := c.Call(context.Background(), "plain", nil, nil)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CodeUnknown, re.Code)
	assert.Contains(t, re.Message, "boom")
	assert.Nil(t, errors.Unwrap(re))
}

// TestCall_ContextDeadline 调用方超时
func TestCall_ContextDeadline(t *testing.T) {
	c := dialClient(t, startServer(t, newTestServer()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Call(ctx, "block", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)

	// 会话仍可用
	require.NoError(t, c.Call(context.Background(), "echo", echoParams{Text: "after"}, nil))
}

// TestClient_Closed 会话关闭后调用失败
func TestClient_Closed(t *testing.T) {
	c := dialClient(t, startServer(t, newTestServer()))
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}

	err := c.Call(context.Background(), "echo", echoParams{}, nil)
	assert.ErrorIs(t, err, muxer.ErrConnClosed)
}

// TestServer_CloseWaitsForHandlers Close 取消进行中的调用并等待处理器返回
func TestServer_CloseWaitsForHandlers(t *testing.T) {
	srv := newTestServer()
	started := make(chan struct{})
	var finished atomic.Bool
	srv.Register("slow", func(ctx context.Context, _ *Call) (any, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil, ctx.Err()
	})
	c := dialClient(t, startServer(t, srv))

	errc := make(chan error, 1)
	go func() { errc <- c.Call(context.Background(), "slow", nil, nil) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not started")
	}

	require.NoError(t, srv.Close())
	assert.True(t, finished.Load(), "Close returned before the handler finished")

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("call not unblocked by server close")
	}

	// 关闭后不再接受新调用
	assert.Error(t, c.Call(context.Background(), "echo", echoParams{}, nil))
}

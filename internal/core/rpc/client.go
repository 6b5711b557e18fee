package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dep2p/go-secretmesh/internal/core/muxer"
)

// Client RPC 客户端，在一条连接上复用多次调用
type Client struct {
	sess *muxer.Session
}

// NewClient 在 conn 上建立 yamux 客户端会话
func NewClient(conn net.Conn, cfg muxer.Config) (*Client, error) {
	sess, err := muxer.NewClient(conn, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{sess: sess}, nil
}

// Call 调用远端方法
//
// result 为 nil 时丢弃返回值。远端错误以 *RemoteError 返回。
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	payload, err := msgpack.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	st, err := c.sess.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	// ctx 取消时中断阻塞的读写
	stop := context.AfterFunc(ctx, func() { _ = st.Close() })
	defer stop()

	if err := msgpack.NewEncoder(st).Encode(&request{Method: method, Params: payload}); err != nil {
		return c.callError(ctx, fmt.Errorf("write request: %w", err))
	}

	var resp response
	if err := msgpack.NewDecoder(st).Decode(&resp); err != nil {
		return c.callError(ctx, fmt.Errorf("read response: %w", err))
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := msgpack.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) callError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Close 关闭会话
func (c *Client) Close() error {
	return c.sess.Close()
}

// IsClosed 会话是否已关闭
func (c *Client) IsClosed() bool {
	return c.sess.IsClosed()
}

// Done 会话关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.sess.CloseChan()
}

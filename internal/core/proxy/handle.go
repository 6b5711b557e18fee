package proxy

import (
	"context"
	"net"
	"sync/atomic"

	quictr "github.com/dep2p/go-secretmesh/internal/core/transport/quic"
)

// ConnHandle 连接的引用句柄
//
// 每个句柄持有一次引用，Release 后失效。连接关闭（包括 Stop）后
// OpenStream 返回 ErrConnectionNotRunning。
type ConnHandle struct {
	c        *connection
	released atomic.Bool
}

func newConnHandle(c *connection) *ConnHandle {
	return &ConnHandle{c: c}
}

// Info 返回连接快照
func (h *ConnHandle) Info() ConnectionInfo {
	return h.c.info()
}

// State 返回连接当前状态
func (h *ConnHandle) State() State {
	return h.c.State()
}

// Done 连接进入终态时关闭
func (h *ConnHandle) Done() <-chan struct{} {
	return h.c.done
}

// OpenStream 在连接上打开新的双向流
//
// 对端把该流转发到它的本地服务。
func (h *ConnHandle) OpenStream(ctx context.Context) (net.Conn, error) {
	if h.released.Load() {
		return nil, ErrHandleReleased
	}
	s, qconn, err := h.c.openStream(ctx)
	if err != nil {
		return nil, err
	}
	return quictr.NewStream(s, qconn), nil
}

// Release 释放引用，重复调用无效果
func (h *ConnHandle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.c.release()
}

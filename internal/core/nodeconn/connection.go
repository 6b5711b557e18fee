package nodeconn

import (
	"context"
	"time"

	"github.com/dep2p/go-secretmesh/internal/core/rpc"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// NodeConnection 到一个节点的 RPC 会话
//
// 每次 AcquireConnection 必须对应一次 Release。
type NodeConnection struct {
	m       *Manager
	id      types.NodeID
	addr    types.NodeAddress
	client  *rpc.Client
	created time.Time

	// 以下字段由 Manager.mu 保护
	refs      int
	idle      *time.Timer
	idleGen   uint64
	destroyed bool
}

// NodeID 返回远端节点标识
func (c *NodeConnection) NodeID() types.NodeID {
	return c.id
}

// Address 返回远端代理地址
func (c *NodeConnection) Address() types.NodeAddress {
	return c.addr
}

// Call 在会话上调用远端方法
func (c *NodeConnection) Call(ctx context.Context, method string, params, result any) error {
	return c.client.Call(ctx, method, params, result)
}

// Done 会话关闭时关闭
func (c *NodeConnection) Done() <-chan struct{} {
	return c.client.Done()
}

// Release 释放引用
//
// 最后一个引用释放后开始空闲计时，超时销毁会话。
func (c *NodeConnection) Release() {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.refs > 0 {
		c.refs--
	}
	if c.refs == 0 && !c.destroyed {
		c.startIdleLocked()
	}
}

// ref 增加引用并停止空闲计时，调用方持有 Manager.mu
func (c *NodeConnection) ref() {
	c.refs++
	c.stopIdleLocked()
}

func (c *NodeConnection) startIdleLocked() {
	c.stopIdleLocked()
	gen := c.idleGen
	c.idle = time.AfterFunc(c.m.cfg.ConnTimeoutTime, func() {
		c.m.expire(c, gen)
	})
}

func (c *NodeConnection) stopIdleLocked() {
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
	c.idleGen++
}

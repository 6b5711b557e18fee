package nodeconn

import (
	"errors"

	"github.com/dep2p/go-secretmesh/internal/core/rpc"
)

var (
	// ErrNotRunning 管理器未运行
	ErrNotRunning = errors.New("nodeconn: manager not running")

	// ErrNodeNotFound 迭代查找耗尽候选仍未找到目标
	ErrNodeNotFound = errors.New("nodeconn: node not found")

	// ErrNoSuchConnection 中继目标没有可用的反向连接
	ErrNoSuchConnection = errors.New("nodeconn: no such connection")

	// ErrSelfConnection 不能连接本节点
	ErrSelfConnection = errors.New("nodeconn: cannot connect to self")

	// ErrInvalidSignature 打洞消息签名无效
	ErrInvalidSignature = errors.New("nodeconn: invalid hole punch signature")

	// ErrInvalidHolePunch 打洞消息目标不正确
	ErrInvalidHolePunch = errors.New("nodeconn: invalid hole punch message")

	// ErrRelayRateLimited 来源的中继请求超过速率限制
	ErrRelayRateLimited = errors.New("nodeconn: relay rate limited")

	// ErrNoSeedReachable 没有可达的种子节点
	ErrNoSeedReachable = errors.New("nodeconn: no seed node reachable")
)

func init() {
	rpc.RegisterErrorCode("node_not_found", ErrNodeNotFound)
	rpc.RegisterErrorCode("no_such_connection", ErrNoSuchConnection)
	rpc.RegisterErrorCode("invalid_signature", ErrInvalidSignature)
	rpc.RegisterErrorCode("invalid_hole_punch", ErrInvalidHolePunch)
	rpc.RegisterErrorCode("relay_rate_limited", ErrRelayRateLimited)
	rpc.RegisterErrorCode("not_running", ErrNotRunning)
}

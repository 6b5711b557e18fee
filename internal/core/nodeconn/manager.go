package nodeconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-secretmesh/internal/core/muxer"
	"github.com/dep2p/go-secretmesh/internal/core/nodegraph"
	"github.com/dep2p/go-secretmesh/internal/core/proxy"
	"github.com/dep2p/go-secretmesh/internal/core/rpc"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

var logger = log.Logger("core/nodeconn")

// ============================================================================
//                              Manager
// ============================================================================

// Manager 节点连接管理器
type Manager struct {
	cfg     Config
	signer  Signer
	graph   *nodegraph.Graph
	proxy   *proxy.Proxy
	muxCfg  muxer.Config
	seeds   map[types.NodeID]types.NodeAddress
	metrics metrics

	group singleflight.Group

	limiters *relayLimiters

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	conns   map[types.NodeID]*NodeConnection

	wg sync.WaitGroup
}

// New 创建管理器
//
// 代理建立的每条连接都会刷新路由表中对端的地址。
func New(cfg Config, signer Signer, graph *nodegraph.Graph, prx *proxy.Proxy) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		signer:   signer,
		graph:    graph,
		proxy:    prx,
		muxCfg:   muxer.DefaultConfig(),
		seeds:    make(map[types.NodeID]types.NodeAddress, len(cfg.SeedNodes)),
		metrics:  newMetrics(),
		limiters: newRelayLimiters(cfg.RelayRateLimit, cfg.RelayBurst),
		conns:    make(map[types.NodeID]*NodeConnection),
	}
	for _, s := range cfg.SeedNodes {
		if s.ID == signer.NodeID() {
			continue
		}
		m.seeds[s.ID] = s.Address
	}
	prx.OnConnectionEstablished(m.onConnectionEstablished)
	return m, nil
}

func (m *Manager) onConnectionEstablished(info proxy.ConnectionInfo) {
	if info.RemoteNodeID.IsEmpty() || info.RemoteNodeID == m.signer.NodeID() {
		return
	}
	if err := m.graph.SetNode(info.RemoteNodeID, info.RemoteAddress()); err != nil {
		logger.Warn("更新路由表失败", "node", info.RemoteNodeID.ShortString(), "error", err)
	}
}

// Start 启动管理器，把种子节点写入路由表
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	for id, addr := range m.seeds {
		if err := m.graph.SetNode(id, addr); err != nil {
			return fmt.Errorf("add seed %s: %w", id.ShortString(), err)
		}
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true
	logger.Info("节点连接管理器已启动", "seeds", len(m.seeds))
	return nil
}

// Stop 停止管理器，强制销毁所有会话
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	conns := make([]*NodeConnection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, m.destroy(c, "shutdown"))
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	logger.Info("节点连接管理器已停止")
	return err
}

// IsRunning 是否在运行
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// IsSeedNode 是否为配置的种子节点
func (m *Manager) IsSeedNode(id types.NodeID) bool {
	_, ok := m.seeds[id]
	return ok
}

// ConnectionCount 返回缓存的会话数
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// track 登记一个后台任务，未运行时返回 false
func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.wg.Add(1)
	return true
}

// ============================================================================
//                              会话
// ============================================================================

// AcquireConnection 返回到 id 的会话，必要时查找地址并新建
//
// 同一节点的并发调用共享一次创建。
func (m *Manager) AcquireConnection(ctx context.Context, id types.NodeID) (*NodeConnection, error) {
	return m.acquire(ctx, id, nil)
}

// WithConnection 获取会话执行 fn，返回后释放
func (m *Manager) WithConnection(ctx context.Context, id types.NodeID, fn func(*NodeConnection) error) error {
	c, err := m.AcquireConnection(ctx, id)
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

// withAddress 与 WithConnection 相同，但新建会话时直接使用给定地址
func (m *Manager) withAddress(ctx context.Context, node types.NodeData, fn func(*NodeConnection) error) error {
	c, err := m.acquire(ctx, node.ID, &node.Address)
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

func (m *Manager) acquire(ctx context.Context, id types.NodeID, hint *types.NodeAddress) (*NodeConnection, error) {
	if id == m.signer.NodeID() {
		return nil, ErrSelfConnection
	}
	for {
		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			return nil, ErrNotRunning
		}
		if c, ok := m.conns[id]; ok {
			c.ref()
			m.mu.Unlock()
			return c, nil
		}
		m.mu.Unlock()

		ch := m.group.DoChan(id.String(), func() (any, error) {
			return m.createConnection(id, hint)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			c := res.Val.(*NodeConnection)
			m.mu.Lock()
			if !c.destroyed {
				c.ref()
				m.mu.Unlock()
				return c, nil
			}
			m.mu.Unlock()
			// 刚创建就被销毁，重新获取
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// createConnection 新建会话并以空闲状态放入缓存
//
// 创建不受单个调用方 ctx 约束，调用方放弃后会话仍可被后来者复用。
func (m *Manager) createConnection(id types.NodeID, hint *types.NodeAddress) (*NodeConnection, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, ErrNotRunning
	}
	base := m.ctx
	m.mu.Unlock()

	var addr types.NodeAddress
	if hint != nil {
		addr = *hint
	} else {
		var err error
		if addr, err = m.FindNode(base, id); err != nil {
			return nil, err
		}
	}

	if !m.IsSeedNode(id) {
		m.requestHolePunch(id)
	}

	ctx, cancel := context.WithTimeout(base, m.cfg.ConnConnectTime)
	defer cancel()

	logger.Debug("创建节点会话", "node", id.ShortString(), "addr", addr.String())
	tunnel, err := proxy.DialTunnel(ctx, m.proxy.ForwardAddress(), m.proxy.AuthToken(), id, addr)
	if err != nil {
		m.metrics.ConnectionsFailed.Inc()
		logger.Debug("创建节点会话失败", "node", id.ShortString(), "error", err)
		return nil, fmt.Errorf("connect %s: %w", id.ShortString(), connectError(err))
	}
	client, err := rpc.NewClient(tunnel, m.muxCfg)
	if err != nil {
		_ = tunnel.Close()
		m.metrics.ConnectionsFailed.Inc()
		return nil, err
	}

	c := &NodeConnection{m: m, id: id, addr: addr, client: client, created: time.Now()}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		_ = client.Close()
		return nil, ErrNotRunning
	}
	if old, ok := m.conns[id]; ok && !old.destroyed {
		// 不经过 singleflight 的并发创建（如 Stop 后重启）只保留一个
		m.mu.Unlock()
		_ = client.Close()
		return old, nil
	}
	m.conns[id] = c
	c.startIdleLocked()
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.ConnectionsCreated.Inc()
	m.metrics.ActiveConnections.Inc()
	logger.Info("节点会话已建立", "node", id.ShortString(), "addr", addr.String())

	go func() {
		defer m.wg.Done()
		<-client.Done()
		_ = m.destroy(c, "session closed")
	}()
	return c, nil
}

// connectError 把 CONNECT 入口的状态码还原为代理错误
func connectError(err error) error {
	var te *proxy.TunnelError
	if !errors.As(err, &te) {
		return err
	}
	switch te.StatusCode {
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", proxy.ErrConnectionStartTimeout, te.Status)
	case proxy.StatusInvalidSSLCertificate:
		return fmt.Errorf("%w: %s", proxy.ErrConnectionVerify, te.Status)
	default:
		return fmt.Errorf("%w: %s", proxy.ErrConnectionStart, te.Status)
	}
}

// expire 空闲超时回调，gen 不匹配说明期间被重新引用过
func (m *Manager) expire(c *NodeConnection, gen uint64) {
	m.mu.Lock()
	if c.destroyed || c.refs > 0 || c.idleGen != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	_ = m.destroy(c, "idle timeout")
}

// destroy 从缓存移除并关闭会话，不论是否仍有引用
func (m *Manager) destroy(c *NodeConnection, reason string) error {
	m.mu.Lock()
	if c.destroyed {
		m.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.stopIdleLocked()
	if m.conns[c.id] == c {
		delete(m.conns, c.id)
	}
	m.mu.Unlock()

	m.metrics.ConnectionsDestroyed.Inc()
	m.metrics.ActiveConnections.Dec()
	logger.Debug("销毁节点会话", "node", c.id.ShortString(), "reason", reason)
	return c.client.Close()
}

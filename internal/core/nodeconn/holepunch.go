package nodeconn

import (
	"context"
	"fmt"
	"net"

	"github.com/dep2p/go-secretmesh/internal/core/rpc"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              打洞中继
// ============================================================================

// SendHolePunchMessage 请求 via 节点把打洞消息中继给消息目标
func (m *Manager) SendHolePunchMessage(ctx context.Context, via types.NodeID, msg *HolePunchMessage) error {
	err := m.WithConnection(ctx, via, func(c *NodeConnection) error {
		return c.Call(ctx, MethodHolePunchMessage, msg, nil)
	})
	if err != nil {
		return err
	}
	m.metrics.HolePunchSent.Inc()
	return nil
}

// requestHolePunch 请求所有种子节点为 target 中继打洞消息
//
// 尽力而为，在后台进行，不阻塞会话创建。
func (m *Manager) requestHolePunch(target types.NodeID) {
	msg := NewHolePunchMessage(m.signer, target, m.proxy.ProxyAddress())
	for seed := range m.seeds {
		if seed == target {
			continue
		}
		if !m.track() {
			return
		}
		go func(seed types.NodeID) {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnConnectTime)
			defer cancel()
			if err := m.SendHolePunchMessage(ctx, seed, msg); err != nil {
				logger.Debug("请求中继打洞失败", "seed", seed.ShortString(), "target", target.ShortString(), "error", err)
			}
		}(seed)
	}
}

// RelayHolePunchMessage 把打洞消息转发给本节点持有反向连接的目标
//
// observed 为本节点看到的来源地址，非空时写入转发的消息。目标没有已建立
// 的反向连接时返回 ErrNoSuchConnection，不做重试。
func (m *Manager) RelayHolePunchMessage(ctx context.Context, msg *HolePunchMessage, observed types.NodeAddress) error {
	if !m.IsRunning() {
		return ErrNotRunning
	}
	if err := msg.Verify(); err != nil {
		m.metrics.HolePunchRelayed.WithLabelValues("invalid").Inc()
		return err
	}
	if !m.limiters.allow(msg.SourceID) {
		m.metrics.HolePunchRelayed.WithLabelValues("limited").Inc()
		return ErrRelayRateLimited
	}

	h, err := m.proxy.AcquireReverseByNodeID(msg.TargetID)
	if err != nil {
		m.metrics.HolePunchRelayed.WithLabelValues("no_connection").Inc()
		return fmt.Errorf("%w: %s", ErrNoSuchConnection, msg.TargetID.ShortString())
	}
	defer h.Release()

	fwd := *msg
	fwd.Relayed = true
	if !observed.IsZero() {
		fwd.ObservedAddress = observed
	}

	stream, err := h.OpenStream(ctx)
	if err != nil {
		m.metrics.HolePunchRelayed.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrNoSuchConnection, err)
	}
	client, err := rpc.NewClient(stream, m.muxCfg)
	if err != nil {
		_ = stream.Close()
		m.metrics.HolePunchRelayed.WithLabelValues("failed").Inc()
		return err
	}
	defer client.Close()

	if err := client.Call(ctx, MethodHolePunchMessage, &fwd, nil); err != nil {
		m.metrics.HolePunchRelayed.WithLabelValues("failed").Inc()
		return err
	}
	m.metrics.HolePunchRelayed.WithLabelValues("ok").Inc()
	logger.Debug("已中继打洞消息",
		"source", msg.SourceID.ShortString(),
		"target", msg.TargetID.ShortString(),
		"observed", fwd.ObservedAddress.String())
	return nil
}

// HandleHolePunchMessage 处理发给本节点的打洞消息
//
// 校验签名后在后台向来源发起反向打洞，优先使用 observed 地址。
func (m *Manager) HandleHolePunchMessage(_ context.Context, msg *HolePunchMessage, observed types.NodeAddress) error {
	if msg.TargetID != m.signer.NodeID() {
		m.metrics.HolePunchReceived.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: target %s is not this node", ErrInvalidHolePunch, msg.TargetID.ShortString())
	}
	if err := msg.Verify(); err != nil {
		m.metrics.HolePunchReceived.WithLabelValues("invalid").Inc()
		return err
	}
	addr := msg.punchAddress(observed)
	if addr.Host == "" {
		m.metrics.HolePunchReceived.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: no reachable address for %s", ErrInvalidHolePunch, msg.SourceID.ShortString())
	}
	if !m.track() {
		return ErrNotRunning
	}
	m.metrics.HolePunchReceived.WithLabelValues("ok").Inc()

	logger.Debug("收到打洞消息", "source", msg.SourceID.ShortString(), "addr", addr.String())
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnConnectTime)
		defer cancel()
		if err := m.proxy.OpenConnectionReverse(ctx, addr.Host, addr.Port); err != nil {
			logger.Debug("反向打洞失败", "source", msg.SourceID.ShortString(), "addr", addr.String(), "error", err)
		}
	}()
	return nil
}

// observedAddress 根据 RPC 调用方地址反查发起节点和其 UDP 地址
func (m *Manager) observedAddress(remote net.Addr) (types.NodeID, types.NodeAddress, bool) {
	if remote == nil {
		return types.NodeID{}, types.NodeAddress{}, false
	}
	na := types.NodeAddressFromNetAddr(remote)
	info, ok := m.proxy.ConnectionInfoByReverse(na.Host, na.Port)
	if !ok {
		return types.NodeID{}, types.NodeAddress{}, false
	}
	return info.RemoteNodeID, info.RemoteAddress(), true
}

package nodeconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dep2p/go-secretmesh/internal/core/proxy"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// seedRetries 每个种子节点的重试次数
const seedRetries = 3

var errSeedUnreachable = errors.New("seed unreachable")

// PingNode 通过代理向 host:port 建立认证连接检查节点是否在线
//
// 连接失败返回 false；只有代理未运行等本地错误才返回 error。
func (m *Manager) PingNode(ctx context.Context, id types.NodeID, host string, port uint16) (bool, error) {
	if !m.IsRunning() {
		return false, ErrNotRunning
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnConnectTime)
	defer cancel()

	err := m.proxy.OpenConnectionForward(ctx, types.NodeIDSet{id}, host, port)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, proxy.ErrProxyNotRunning), errors.Is(err, proxy.ErrInvalidTarget):
		return false, err
	default:
		logger.Debug("节点不可达", "node", id.ShortString(), "addr", types.NodeAddress{Host: host, Port: port}.String(), "error", err)
		return false, nil
	}
}

// SyncNodeGraph 连接种子节点并查找本节点附近的节点
//
// 每个种子节点以指数退避重试，全部不可达时返回 ErrNoSeedReachable。
// 之后对本节点标识做一次查找，获知的节点写入路由表。
func (m *Manager) SyncNodeGraph(ctx context.Context) error {
	if !m.IsRunning() {
		return ErrNotRunning
	}
	if len(m.seeds) == 0 {
		logger.Info("没有配置种子节点，跳过同步")
		return nil
	}

	reached := 0
	for id, addr := range m.seeds {
		op := func() error {
			ok, err := m.PingNode(ctx, id, addr.Host, addr.Port)
			if err != nil {
				return backoff.Permanent(err)
			}
			if !ok {
				return errSeedUnreachable
			}
			return nil
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, seedRetries), ctx)); err != nil {
			logger.Warn("种子节点不可达", "seed", id.ShortString(), "addr", addr.String(), "error", err)
			continue
		}
		reached++
	}
	if reached == 0 {
		return ErrNoSeedReachable
	}

	closest, err := m.GetClosestGlobalNodes(ctx, m.signer.NodeID())
	if err != nil {
		return fmt.Errorf("sync node graph: %w", err)
	}
	logger.Info("路由表同步完成", "seeds", reached, "closest", len(closest))
	return nil
}

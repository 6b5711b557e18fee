package nodeconn

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/internal/core/nodegraph"
	"github.com/dep2p/go-secretmesh/internal/core/proxy"
	"github.com/dep2p/go-secretmesh/internal/core/rpc"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Identity *identity.Identity
	Graph    *nodegraph.Graph
	Proxy    *proxy.Proxy
}

// ProvideManager 创建节点连接管理器
func ProvideManager(p Params) (*Manager, error) {
	cfg, err := ConfigFromUnified(p.Config)
	if err != nil {
		return nil, err
	}
	return New(cfg, p.Identity, p.Graph, p.Proxy)
}

// Module 返回 fx 模块配置
//
// 启动后在后台同步一次路由表，失败只记录日志。
func Module() fx.Option {
	return fx.Module("nodeconn",
		fx.Provide(ProvideManager),
		fx.Invoke(registerHandlers),
		fx.Invoke(registerLifecycle),
	)
}

func registerHandlers(m *Manager, srv *rpc.Server) {
	m.RegisterHandlers(srv)
}

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := m.Start(ctx); err != nil {
				return err
			}
			if !m.track() {
				return nil
			}
			go func() {
				defer m.wg.Done()
				if err := m.SyncNodeGraph(m.ctx); err != nil {
					logger.Warn("同步路由表失败", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return m.Stop(ctx)
		},
	})
}

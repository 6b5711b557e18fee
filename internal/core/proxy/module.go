package proxy

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/internal/core/rpc"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Identity *identity.Identity
	RPC      *rpc.Endpoint `optional:"true"`
}

// ProvideProxy 创建代理
//
// 存在 RPC 监听器时，反向流转发到其实际地址。
func ProvideProxy(p Params) (*Proxy, error) {
	cfg := ConfigFromUnified(p.Config)
	if p.RPC != nil {
		cfg.ServerHost = p.RPC.Host()
		cfg.ServerPort = p.RPC.Port()
	}
	return New(cfg, p.Identity)
}

// Module 返回 fx 模块配置
//
// OnStart 绑定套接字，OnStop 结束所有连接。
func Module() fx.Option {
	return fx.Module("proxy",
		fx.Provide(ProvideProxy),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, p *Proxy) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return p.Stop(ctx)
		},
	})
}

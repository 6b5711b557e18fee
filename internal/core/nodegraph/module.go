package nodegraph

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
	"github.com/dep2p/go-secretmesh/internal/core/storage/kv"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Engine   engine.Engine
	Identity *identity.Identity
}

// ProvideGraph 打开路由表
func ProvideGraph(p Params) (*Graph, error) {
	store := kv.New(p.Engine, StorePrefix)
	return New(store, p.Identity.NodeID(), p.Config.NodeGraph.BucketSize)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("nodegraph",
		fx.Provide(ProvideGraph),
	)
}

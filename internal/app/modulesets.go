package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/internal/core/nodeconn"
	"github.com/dep2p/go-secretmesh/internal/core/nodegraph"
	"github.com/dep2p/go-secretmesh/internal/core/proxy"
	"github.com/dep2p/go-secretmesh/internal/core/rpc"
	"github.com/dep2p/go-secretmesh/internal/core/storage"
)

// ============================================================================
//                              模块集合
// ============================================================================

// FoundationModules 基础层模块组合 (Tier 1)
//
// 存储引擎和节点身份，其他模块都依赖它们。
func FoundationModules() fx.Option {
	return fx.Options(
		storage.Module(),
		identity.Module(),
	)
}

// TransportModules 传输层模块组合 (Tier 2)
//
// RPC 监听器在代理之前绑定，代理把反向流转发到它的实际端口。
func TransportModules() fx.Option {
	return fx.Options(
		rpc.Module(),
		proxy.Module(),
	)
}

// DiscoveryModules 发现层模块组合 (Tier 3)
func DiscoveryModules() fx.Option {
	return fx.Options(
		nodegraph.Module(),
		nodeconn.Module(),
	)
}

// MonitoringModules 监控模块组合 (Tier 4)
func MonitoringModules() fx.Option {
	return fx.Module("metrics",
		fx.Provide(NewRegistry, NewMetricsServer),
		fx.Invoke(registerMetricsServer),
	)
}

// AllModules 所有模块组合，不含配置
func AllModules() fx.Option {
	return fx.Options(
		FoundationModules(),
		TransportModules(),
		DiscoveryModules(),
		MonitoringModules(),
	)
}

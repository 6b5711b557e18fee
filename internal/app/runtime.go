package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/internal/core/nodeconn"
	"github.com/dep2p/go-secretmesh/internal/core/nodegraph"
	"github.com/dep2p/go-secretmesh/internal/core/proxy"
	"github.com/dep2p/go-secretmesh/internal/core/rpc"
)

// Runtime 已组装完成的代理运行时
type Runtime struct {
	Identity *identity.Identity
	Graph    *nodegraph.Graph
	Proxy    *proxy.Proxy
	Manager  *nodeconn.Manager
	RPC      *rpc.Endpoint
	Metrics  *MetricsServer

	stop func(ctx context.Context) error
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}

// Wait 阻塞直到收到退出信号或 ctx 结束，然后停止运行时
func (r *Runtime) Wait(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		logger.Info("收到信号，正在退出", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := r.Stop(context.Background()); err != nil {
		return fmt.Errorf("停止运行时失败: %w", err)
	}
	return nil
}

// Package app 提供 secretmesh 代理的应用编排层
//
// app 包负责：
// - fx 模块组装
// - 日志初始化
// - 生命周期管理
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("app")

// Bootstrap 应用引导程序
type Bootstrap struct {
	config  *config.Config
	fxApp   *fx.App
	runtime Runtime

	// StartTimeout fx 启动时限
	StartTimeout time.Duration

	// StopTimeout fx 停止时限
	StopTimeout time.Duration
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config) *Bootstrap {
	return &Bootstrap{
		config:       cfg,
		StartTimeout: 30 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// Build 组装并启动所有模块，返回运行时句柄
func (b *Bootstrap) Build(ctx context.Context) (*Runtime, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	b.setupLogging()

	b.fxApp = fx.New(
		fx.Options(b.setupModules()...),
		fx.Populate(
			&b.runtime.Identity,
			&b.runtime.Graph,
			&b.runtime.Proxy,
			&b.runtime.Manager,
			&b.runtime.RPC,
			&b.runtime.Metrics,
		),
		fx.WithLogger(b.fxLogger),
	)
	if err := b.fxApp.Err(); err != nil {
		return nil, fmt.Errorf("组装模块失败: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, b.StartTimeout)
	defer cancel()
	if err := b.fxApp.Start(startCtx); err != nil {
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}

	b.runtime.stop = b.Stop
	logger.Info("代理已启动",
		"nodeID", b.runtime.Identity.NodeID().String(),
		"proxy", b.runtime.Proxy.ProxyAddress().String(),
		"forward", b.runtime.Proxy.ForwardAddress().String())
	return &b.runtime, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, b.StopTimeout)
	defer cancel()
	return b.fxApp.Stop(stopCtx)
}

// setupModules 组装所有 fx 模块
func (b *Bootstrap) setupModules() []fx.Option {
	return []fx.Option{
		// 配置（Tier 0）
		fx.Supply(b.config),

		// 存储与身份（Tier 1）
		FoundationModules(),

		// RPC 与代理（Tier 2）
		TransportModules(),

		// 路由表与连接管理（Tier 3）
		DiscoveryModules(),

		// 指标（Tier 4）
		MonitoringModules(),
	}
}

// setupLogging 按配置重建默认 logger
func (b *Bootstrap) setupLogging() {
	log.Setup(nil, b.config.Log.Level, log.Format(b.config.Log.Format))
}

// fxLogger 容器事件只在 debug 级别输出
func (b *Bootstrap) fxLogger() fxevent.Logger {
	if b.config.Log.Level != "debug" {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
	zl, err := zap.NewDevelopment()
	if err != nil {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
	return &fxevent.ZapLogger{Logger: zl.Named("fx")}
}

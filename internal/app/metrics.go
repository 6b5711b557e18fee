package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/nodeconn"
	"github.com/dep2p/go-secretmesh/internal/core/proxy"
)

// ============================================================================
//                              指标
// ============================================================================

// MetricsParams 指标模块依赖
type MetricsParams struct {
	fx.In

	Proxy   *proxy.Proxy
	Manager *nodeconn.Manager
}

// NewRegistry 创建 Prometheus 注册表并注册各组件采集器
func NewRegistry(p MetricsParams) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	cs = append(cs, p.Proxy.Metrics()...)
	cs = append(cs, p.Manager.Metrics()...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// MetricsServer /metrics HTTP 端点
type MetricsServer struct {
	enabled bool
	addr    string
	srv     *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewMetricsServer 创建指标端点，metrics.enabled 为 false 时不监听
func NewMetricsServer(cfg *config.Config, reg *prometheus.Registry) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &MetricsServer{
		enabled: cfg.Metrics.Enabled,
		addr:    cfg.Metrics.ListenAddr,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr 返回实际监听地址，未启用时为空
func (m *MetricsServer) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

func (m *MetricsServer) start() error {
	if !m.enabled {
		return nil
	}
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.ln = ln
	m.mu.Unlock()

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("指标服务退出", "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", ln.Addr().String())
	return nil
}

func (m *MetricsServer) stop(ctx context.Context) error {
	if !m.enabled {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

func registerMetricsServer(lc fx.Lifecycle, m *MetricsServer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.start() },
		OnStop:  m.stop,
	})
}

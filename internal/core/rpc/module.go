package rpc

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/muxer"
)

// Endpoint 本地 RPC 服务监听器
//
// 在构造时绑定，代理需要在启动前知道实际端口。
type Endpoint struct {
	net.Listener
}

// Port 返回实际监听端口
func (e *Endpoint) Port() uint16 {
	if a, ok := e.Addr().(*net.TCPAddr); ok {
		return uint16(a.Port)
	}
	return 0
}

// Host 返回监听地址
func (e *Endpoint) Host() string {
	if a, ok := e.Addr().(*net.TCPAddr); ok {
		return a.IP.String()
	}
	return ""
}

// ProvideEndpoint 在 proxy.server_host:proxy.server_port 上监听
func ProvideEndpoint(cfg *config.Config) (*Endpoint, error) {
	addr := net.JoinHostPort(cfg.Proxy.ServerHost, strconv.Itoa(int(cfg.Proxy.ServerPort)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen rpc %s: %w", addr, err)
	}
	return &Endpoint{Listener: ln}, nil
}

// ProvideServer 创建 RPC 服务端
//
// 单次调用的处理时限取 node_conn.conn_connect_time。
func ProvideServer(cfg *config.Config) *Server {
	return NewServer(muxer.DefaultConfig(), cfg.NodeConn.ConnConnectTime.Duration())
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("rpc",
		fx.Provide(ProvideEndpoint, ProvideServer),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, ep *Endpoint) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Serve(ep); err != nil {
					logger.Error("RPC 服务退出", "error", err)
				}
			}()
			logger.Info("RPC 服务已启动", "addr", ep.Addr().String())
			return nil
		},
		OnStop: func(context.Context) error {
			err := ep.Close()
			_ = srv.Close()
			return err
		},
	})
}

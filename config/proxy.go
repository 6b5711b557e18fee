package config

import (
	"errors"
	"time"
)

// ProxyConfig 代理配置
//
// 转发端在 ForwardHost:ForwardPort 接受本地 CONNECT 请求；
// 所有对等 UDP 流量走 ProxyHost:ProxyPort；
// 反向端把远端发起的流转接到 ServerHost:ServerPort。
type ProxyConfig struct {
	// ForwardHost 本地 CONNECT 入口监听地址
	// 默认值: "127.0.0.1"
	ForwardHost string `json:"forward_host"`

	// ForwardPort 本地 CONNECT 入口端口，0 表示自动分配
	ForwardPort uint16 `json:"forward_port"`

	// ProxyHost 对外 UDP 套接字地址
	// 默认值: "0.0.0.0"
	ProxyHost string `json:"proxy_host"`

	// ProxyPort 对外 UDP 端口，0 表示自动分配
	ProxyPort uint16 `json:"proxy_port"`

	// AdvertiseHost 打洞消息中公布的主机地址
	// 为空时使用 ProxyHost；ProxyHost 为通配地址时不公布主机，
	// 对端只能使用中继观察到的地址
	AdvertiseHost string `json:"advertise_host"`

	// ServerHost 本地 RPC 服务地址
	ServerHost string `json:"server_host"`

	// ServerPort 本地 RPC 服务端口
	ServerPort uint16 `json:"server_port"`

	// AuthToken CONNECT 入口的 Proxy-Authorization Basic 令牌
	AuthToken string `json:"auth_token"`

	// ConnConnectTime 连接组建超时
	// 默认值: 20s
	ConnConnectTime Duration `json:"conn_connect_time"`

	// ConnKeepAliveIntervalTime 打洞/保活 ping 间隔
	// 默认值: 1s
	ConnKeepAliveIntervalTime Duration `json:"conn_keep_alive_interval_time"`

	// ConnKeepAliveTimeoutTime 无存活信号多久后关闭连接
	// 默认值: 20s
	ConnKeepAliveTimeoutTime Duration `json:"conn_keep_alive_timeout_time"`

	// ConnEndTime 优雅关闭时等待在途流的时间
	// 默认值: 1s
	ConnEndTime Duration `json:"conn_end_time"`
}

// DefaultProxyConfig 返回默认代理配置
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		ForwardHost:               "127.0.0.1",
		ForwardPort:               0,
		ProxyHost:                 "0.0.0.0",
		ProxyPort:                 0,
		ServerHost:                "127.0.0.1",
		ServerPort:                0,
		ConnConnectTime:           Duration(20 * time.Second),
		ConnKeepAliveIntervalTime: Duration(time.Second),
		ConnKeepAliveTimeoutTime:  Duration(20 * time.Second),
		ConnEndTime:               Duration(time.Second),
	}
}

// Validate 验证代理配置
func (c *ProxyConfig) Validate() error {
	if c.ForwardHost == "" {
		return errors.New("proxy: forward_host cannot be empty")
	}
	if c.ProxyHost == "" {
		return errors.New("proxy: proxy_host cannot be empty")
	}
	if c.ConnConnectTime <= 0 {
		return errors.New("proxy: conn_connect_time must be positive")
	}
	if c.ConnKeepAliveIntervalTime <= 0 {
		return errors.New("proxy: conn_keep_alive_interval_time must be positive")
	}
	if c.ConnKeepAliveTimeoutTime <= c.ConnKeepAliveIntervalTime {
		return errors.New("proxy: conn_keep_alive_timeout_time must exceed conn_keep_alive_interval_time")
	}
	if c.ConnEndTime < 0 {
		return errors.New("proxy: conn_end_time cannot be negative")
	}
	return nil
}

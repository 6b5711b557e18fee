package proxy

import (
	"errors"
	"time"

	"github.com/dep2p/go-secretmesh/config"
)

// Config 代理配置
type Config struct {
	ForwardHost string
	ForwardPort uint16
	ProxyHost   string
	ProxyPort   uint16
	ServerHost  string

	// AdvertiseHost 对外公布的主机，为空时取绑定地址
	AdvertiseHost string

	ServerPort  uint16
	AuthToken   string

	ConnConnectTime           time.Duration
	ConnKeepAliveIntervalTime time.Duration
	ConnKeepAliveTimeoutTime  time.Duration
	ConnEndTime               time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置转换
//
// cfg 为 nil 时使用默认值。
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	pc := cfg.Proxy
	return Config{
		ForwardHost:               pc.ForwardHost,
		ForwardPort:               pc.ForwardPort,
		ProxyHost:                 pc.ProxyHost,
		ProxyPort:                 pc.ProxyPort,
		AdvertiseHost:             pc.AdvertiseHost,
		ServerHost:                pc.ServerHost,
		ServerPort:                pc.ServerPort,
		AuthToken:                 pc.AuthToken,
		ConnConnectTime:           pc.ConnConnectTime.Duration(),
		ConnKeepAliveIntervalTime: pc.ConnKeepAliveIntervalTime.Duration(),
		ConnKeepAliveTimeoutTime:  pc.ConnKeepAliveTimeoutTime.Duration(),
		ConnEndTime:               pc.ConnEndTime.Duration(),
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ConnConnectTime <= 0 {
		return errors.New("proxy: conn connect time must be positive")
	}
	if c.ConnKeepAliveIntervalTime <= 0 {
		return errors.New("proxy: keep alive interval must be positive")
	}
	if c.ConnKeepAliveTimeoutTime <= c.ConnKeepAliveIntervalTime {
		return errors.New("proxy: keep alive timeout must exceed interval")
	}
	if c.ConnEndTime < 0 {
		return errors.New("proxy: conn end time must not be negative")
	}
	return nil
}

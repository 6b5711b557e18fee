package config

import "errors"

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否暴露 /metrics
	Enabled bool `json:"enabled"`

	// ListenAddr 指标 HTTP 监听地址
	// 默认值: "127.0.0.1:9464"
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		ListenAddr: "127.0.0.1:9464",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.ListenAddr == "" {
		return errors.New("metrics: listen_addr cannot be empty when enabled")
	}
	return nil
}

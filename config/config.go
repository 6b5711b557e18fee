// Package config 提供 secretmesh 代理的统一配置
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 提供 Default*Config() 和 Validate()。配置以 JSON 加载，时长字段
// 使用 Duration（"20s" 形式）。
//
//	cfg := config.NewConfig()
//	cfg.Proxy.ProxyPort = 1314
//
//	cfg, err := config.LoadFile("agent.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 代理的完整配置
type Config struct {
	// Proxy 转发/反向代理配置
	Proxy ProxyConfig `json:"proxy"`

	// NodeGraph 路由表配置
	NodeGraph NodeGraphConfig `json:"node_graph"`

	// NodeConn 节点连接管理配置
	NodeConn NodeConnConfig `json:"node_conn"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Proxy:     DefaultProxyConfig(),
		NodeGraph: DefaultNodeGraphConfig(),
		NodeConn:  DefaultNodeConnConfig(),
		Storage:   DefaultStorageConfig(),
		Identity:  DefaultIdentityConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 递归验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	validators := []interface{ Validate() error }{
		&c.Proxy, &c.NodeGraph, &c.NodeConn, &c.Storage, &c.Identity, &c.Metrics, &c.Log,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 读取并验证 JSON 配置文件
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 将配置序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

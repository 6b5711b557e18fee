package config

import (
	"errors"
	"fmt"
	"time"
)

// SeedNode 种子节点
//
// 启动时写入路由表，并作为 SyncNodeGraph 和打洞中继的入口。
type SeedNode struct {
	// NodeID Base58 编码的节点标识
	NodeID string `json:"node_id"`

	// Host 种子节点的 IP 地址
	Host string `json:"host"`

	// Port 种子节点的代理端口
	Port uint16 `json:"port"`
}

// NodeConnConfig 节点连接管理配置
type NodeConnConfig struct {
	// ConnConnectTime 单次建立节点连接的超时
	// 默认值: 20s
	ConnConnectTime Duration `json:"conn_connect_time"`

	// ConnTimeoutTime 连接在无引用后保持的空闲时间
	// 默认值: 60s
	ConnTimeoutTime Duration `json:"conn_timeout_time"`

	// InitialClosestNodes 每轮并发查询数 alpha
	// 默认值: 3
	InitialClosestNodes int `json:"initial_closest_nodes"`

	// FindNodeTimeout 一次迭代查找的总时限
	// 默认值: 60s
	FindNodeTimeout Duration `json:"find_node_timeout"`

	// RelayRateLimit 每个来源每秒允许中继的打洞消息数
	// 默认值: 5
	RelayRateLimit float64 `json:"relay_rate_limit"`

	// RelayBurst 中继限流的突发量
	// 默认值: 10
	RelayBurst int `json:"relay_burst"`

	// SeedNodes 种子节点列表
	SeedNodes []SeedNode `json:"seed_nodes,omitempty"`
}

// DefaultNodeConnConfig 返回默认节点连接配置
func DefaultNodeConnConfig() NodeConnConfig {
	return NodeConnConfig{
		ConnConnectTime:     Duration(20 * time.Second),
		ConnTimeoutTime:     Duration(60 * time.Second),
		InitialClosestNodes: 3,
		FindNodeTimeout:     Duration(60 * time.Second),
		RelayRateLimit:      5,
		RelayBurst:          10,
	}
}

// Validate 验证节点连接配置
func (c *NodeConnConfig) Validate() error {
	if c.ConnConnectTime <= 0 {
		return errors.New("node_conn: conn_connect_time must be positive")
	}
	if c.ConnTimeoutTime <= 0 {
		return errors.New("node_conn: conn_timeout_time must be positive")
	}
	if c.InitialClosestNodes <= 0 {
		return fmt.Errorf("node_conn: initial_closest_nodes must be positive, got %d", c.InitialClosestNodes)
	}
	if c.FindNodeTimeout <= 0 {
		return errors.New("node_conn: find_node_timeout must be positive")
	}
	if c.RelayRateLimit <= 0 || c.RelayBurst <= 0 {
		return errors.New("node_conn: relay rate limit must be positive")
	}
	for i, s := range c.SeedNodes {
		if s.NodeID == "" || s.Host == "" || s.Port == 0 {
			return fmt.Errorf("node_conn: seed_nodes[%d] is incomplete", i)
		}
	}
	return nil
}

package config

import "fmt"

// NodeGraphConfig 路由表配置
type NodeGraphConfig struct {
	// BucketSize 每个桶的容量 k
	// 默认值: 20
	BucketSize int `json:"bucket_size"`

	// NodeIDBits 节点标识位数，决定桶的数量
	// 默认值: 256（当前仅支持 256）
	NodeIDBits int `json:"node_id_bits"`
}

// DefaultNodeGraphConfig 返回默认路由表配置
func DefaultNodeGraphConfig() NodeGraphConfig {
	return NodeGraphConfig{
		BucketSize: 20,
		NodeIDBits: 256,
	}
}

// Validate 验证路由表配置
func (c *NodeGraphConfig) Validate() error {
	if c.BucketSize <= 0 {
		return fmt.Errorf("node_graph: bucket_size must be positive, got %d", c.BucketSize)
	}
	if c.NodeIDBits != 256 {
		return fmt.Errorf("node_graph: node_id_bits must be 256, got %d", c.NodeIDBits)
	}
	return nil
}

package nodeconn

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// Config 管理器配置
type Config struct {
	// ConnConnectTime 建立单个会话的时限
	ConnConnectTime time.Duration

	// ConnTimeoutTime 会话无引用后的保留时间
	ConnTimeoutTime time.Duration

	// Alpha 每轮并发查询数
	Alpha int

	// FindNodeTimeout 一次迭代查找的总时限
	FindNodeTimeout time.Duration

	// RelayRateLimit 每个来源每秒可中继的消息数
	RelayRateLimit float64

	// RelayBurst 中继突发量
	RelayBurst int

	// SeedNodes 种子节点
	SeedNodes []types.NodeData
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	cfg, _ := ConfigFromUnified(nil)
	return cfg
}

// ConfigFromUnified 从统一配置转换，解析种子节点标识
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	nc := cfg.NodeConn
	out := Config{
		ConnConnectTime: nc.ConnConnectTime.Duration(),
		ConnTimeoutTime: nc.ConnTimeoutTime.Duration(),
		Alpha:           nc.InitialClosestNodes,
		FindNodeTimeout: nc.FindNodeTimeout.Duration(),
		RelayRateLimit:  nc.RelayRateLimit,
		RelayBurst:      nc.RelayBurst,
	}
	for i, s := range nc.SeedNodes {
		id, err := types.ParseNodeID(s.NodeID)
		if err != nil {
			return Config{}, fmt.Errorf("seed_nodes[%d]: %w", i, err)
		}
		out.SeedNodes = append(out.SeedNodes, types.NodeData{
			ID:      id,
			Address: types.NodeAddress{Host: s.Host, Port: s.Port},
		})
	}
	return out, nil
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ConnConnectTime <= 0 || c.ConnTimeoutTime <= 0 || c.FindNodeTimeout <= 0 {
		return errors.New("nodeconn: timeouts must be positive")
	}
	if c.Alpha <= 0 {
		return fmt.Errorf("nodeconn: alpha must be positive, got %d", c.Alpha)
	}
	if c.RelayRateLimit <= 0 || c.RelayBurst <= 0 {
		return errors.New("nodeconn: relay rate limit must be positive")
	}
	return nil
}

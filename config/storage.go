package config

import (
	"errors"
	"path/filepath"
)

// StorageConfig 存储配置
//
// 路由表等持久化数据统一存放在 BadgerDB 中，通过 Key 前缀隔离：
//
//	${DataDir}/
//	└── secretmesh.db/
type StorageConfig struct {
	// DataDir 数据目录路径
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// InMemory 使用内存模式，不落盘（测试用）
	InMemory bool `json:"in_memory"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir: "./data",
	}
}

// Validate 验证存储配置
func (c *StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("storage: data_dir cannot be empty")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "secretmesh.db")
}

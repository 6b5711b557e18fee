package config

import (
	"errors"
	"time"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile Ed25519 私钥 PEM 文件路径
	// 为空时使用 DataDir 下的 node.key
	KeyFile string `json:"key_file"`

	// AutoGenerate 密钥文件不存在时自动生成
	// 默认值: true
	AutoGenerate bool `json:"auto_generate"`

	// CertValidity 自签名证书有效期
	// 默认值: 365 天
	CertValidity Duration `json:"cert_validity"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		AutoGenerate: true,
		CertValidity: Duration(365 * 24 * time.Hour),
	}
}

// Validate 验证身份配置
func (c *IdentityConfig) Validate() error {
	if c.CertValidity <= 0 {
		return errors.New("identity: cert_validity must be positive")
	}
	return nil
}

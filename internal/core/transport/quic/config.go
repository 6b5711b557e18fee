package quic

import (
	"time"

	"github.com/quic-go/quic-go"
)

// ConfigParams QUIC 连接参数
type ConfigParams struct {
	// HandshakeTimeout 握手超时（含 TLS）
	HandshakeTimeout time.Duration

	// KeepAliveInterval QUIC 层保活间隔
	KeepAliveInterval time.Duration

	// IdleTimeout 空闲超时，超过后连接被静默关闭
	IdleTimeout time.Duration
}

// NewConfig 构建 quic.Config
func NewConfig(p ConfigParams) *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout:  p.HandshakeTimeout,
		MaxIdleTimeout:        p.IdleTimeout,
		KeepAlivePeriod:       p.KeepAliveInterval,
		MaxIncomingStreams:    1024,
		MaxIncomingUniStreams: -1,
	}
}

package tls

import (
	"crypto/tls"
)

// ALPN 代理连接使用的应用层协议
const ALPN = "secretmesh-proxy/1"

// ServerConfig 构建接收方 TLS 配置
//
// 要求客户端出示证书但不做 PKI 验证，证书链在握手后由
// VerifyClientChain 检查。
func ServerConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{ALPN},
		ClientAuth:   tls.RequireAnyClientCert,
	}
}

// ClientConfig 构建发起方 TLS 配置
//
// 自签名证书无法走 PKI 验证，握手后由 VerifyServerChain 检查。
func ClientConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*cert},
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true, //nolint:gosec // G402: 握手后验证证书链
	}
}

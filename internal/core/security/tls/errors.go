package tls

import "errors"

// 证书链验证错误
var (
	// ErrCertChainEmpty 对端未提供证书
	ErrCertChainEmpty = errors.New("tls: certificate chain is empty")

	// ErrCertChainInvalid 证书无法解析
	ErrCertChainInvalid = errors.New("tls: certificate chain is unparseable")

	// ErrCertChainUnclaimed 链中没有任何证书匹配期望的 NodeID
	ErrCertChainUnclaimed = errors.New("tls: certificate chain is unclaimed")

	// ErrCertChainBroken 证书未被链中下一张证书签名
	ErrCertChainBroken = errors.New("tls: certificate chain is broken")

	// ErrCertChainDateInvalid 证书不在有效期内
	ErrCertChainDateInvalid = errors.New("tls: certificate chain has invalid dates")

	// ErrCertChainKeyInvalid 证书公钥类型不受支持
	ErrCertChainKeyInvalid = errors.New("tls: certificate chain has an unsupported key")
)

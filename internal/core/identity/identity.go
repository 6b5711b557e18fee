package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              Identity
// ============================================================================

// Identity 本节点身份
type Identity struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	nodeID types.NodeID

	certValidity time.Duration
	certMu       sync.Mutex
	cert         *tls.Certificate
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成密钥失败: %w", err)
	}
	return New(priv)
}

// New 从私钥创建身份
func New(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		priv:         priv,
		pub:          pub,
		nodeID:       types.NodeIDFromPublicKey(pub),
		certValidity: 365 * 24 * time.Hour,
	}, nil
}

// NodeID 返回节点标识
func (i *Identity) NodeID() types.NodeID {
	return i.nodeID
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// Sign 签名数据
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}

// SetCertValidity 设置证书有效期，下次 TLSCertificate 调用时生效
func (i *Identity) SetCertValidity(d time.Duration) {
	i.certMu.Lock()
	defer i.certMu.Unlock()
	i.certValidity = d
	i.cert = nil
}

// TLSCertificate 返回以节点私钥签名的自签名证书
//
// 证书在首次调用时生成并缓存。
func (i *Identity) TLSCertificate() (*tls.Certificate, error) {
	i.certMu.Lock()
	defer i.certMu.Unlock()
	if i.cert != nil {
		return i.cert, nil
	}
	cert, err := mtls.GenerateCertificate(i.priv, i.certValidity)
	if err != nil {
		return nil, err
	}
	i.cert = cert
	return cert, nil
}

// Verify 使用公钥验证签名
func Verify(pub ed25519.PublicKey, data, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, signature)
}

package tls

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// 证书时钟偏差容忍
const notBeforeSkew = time.Hour

// GenerateCertificate 使用节点私钥生成自签名证书
//
// 证书公钥即节点公钥，因此 DeriveNodeID(cert) == NodeIDFromPublicKey(pub)。
func GenerateCertificate(priv ed25519.PrivateKey, validity time.Duration) (*tls.Certificate, error) {
	pub := priv.Public().(ed25519.PublicKey)
	template := certTemplate(types.NodeIDFromPublicKey(pub), validity)
	template.IsCA = true
	template.KeyUsage |= x509.KeyUsageCertSign

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("创建证书失败: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("解析证书失败: %w", err)
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// GenerateChainCertificate 生成由 issuer 签发的叶子证书
//
// 返回的证书链为 [leaf, issuer...]，TLS 握手使用 leaf 私钥。
// 对端可以通过链中任一证书认证本节点。
func GenerateChainCertificate(leafKey ed25519.PrivateKey, issuer *tls.Certificate, validity time.Duration) (*tls.Certificate, error) {
	if issuer == nil || issuer.Leaf == nil {
		return nil, fmt.Errorf("签发证书缺少 Leaf")
	}
	issuerKey, ok := issuer.PrivateKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: issuer key %T", ErrCertChainKeyInvalid, issuer.PrivateKey)
	}

	pub := leafKey.Public().(ed25519.PublicKey)
	template := certTemplate(types.NodeIDFromPublicKey(pub), validity)

	der, err := x509.CreateCertificate(rand.Reader, template, issuer.Leaf, pub, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("创建证书失败: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("解析证书失败: %w", err)
	}

	chain := make([][]byte, 0, len(issuer.Certificate)+1)
	chain = append(chain, der)
	chain = append(chain, issuer.Certificate...)
	return &tls.Certificate{
		Certificate: chain,
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}, nil
}

func certTemplate(id types.NodeID, validity time.Duration) *x509.Certificate {
	now := time.Now()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		serial = big.NewInt(now.UnixNano())
	}
	return &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"secretmesh"},
			CommonName:   id.String(),
		},
		NotBefore:             now.Add(-notBeforeSkew),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
}

// DeriveNodeID 从证书公钥派生 NodeID
//
// 只支持 Ed25519 公钥，其他类型返回 ErrCertChainKeyInvalid。
func DeriveNodeID(cert *x509.Certificate) (types.NodeID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return types.EmptyNodeID, fmt.Errorf("%w: %T", ErrCertChainKeyInvalid, cert.PublicKey)
	}
	return types.NodeIDFromPublicKey(pub), nil
}

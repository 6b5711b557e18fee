package tls

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ParseChain 解析 DER 编码的证书链
func ParseChain(raw [][]byte) ([]*x509.Certificate, error) {
	if len(raw) == 0 {
		return nil, ErrCertChainEmpty
	}
	chain := make([]*x509.Certificate, 0, len(raw))
	for i, der := range raw {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: cert %d: %v", ErrCertChainInvalid, i, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// VerifyChain 验证证书链的有效期和签名连续性
//
// chain[i] 必须由 chain[i+1] 签名。最后一张证书不要求自签名。
func VerifyChain(chain []*x509.Certificate, now time.Time) error {
	if len(chain) == 0 {
		return ErrCertChainEmpty
	}
	for i, cert := range chain {
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return fmt.Errorf("%w: cert %d valid %s..%s", ErrCertChainDateInvalid, i,
				cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
		}
		if i+1 < len(chain) {
			parent := chain[i+1]
			if err := parent.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
				return fmt.Errorf("%w: cert %d: %v", ErrCertChainBroken, i, err)
			}
		}
	}
	return nil
}

// VerifyServerChain 验证被连接方的证书链
//
// 链中每张证书派生一个候选 NodeID，任一候选属于 expected 即通过，
// 返回匹配的 NodeID。
func VerifyServerChain(chain []*x509.Certificate, expected types.NodeIDSet, now time.Time) (types.NodeID, error) {
	if err := VerifyChain(chain, now); err != nil {
		return types.EmptyNodeID, err
	}
	for _, cert := range chain {
		id, err := DeriveNodeID(cert)
		if err != nil {
			return types.EmptyNodeID, err
		}
		if expected.Contains(id) {
			return id, nil
		}
	}
	return types.EmptyNodeID, fmt.Errorf("%w: expected one of %d node ids", ErrCertChainUnclaimed, len(expected))
}

// VerifyClientChain 验证连接发起方的证书链
//
// 接受任何有效链，返回叶子证书派生的 NodeID。
func VerifyClientChain(chain []*x509.Certificate, now time.Time) (types.NodeID, error) {
	if err := VerifyChain(chain, now); err != nil {
		return types.EmptyNodeID, err
	}
	return DeriveNodeID(chain[0])
}

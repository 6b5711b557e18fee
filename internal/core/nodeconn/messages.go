package nodeconn

import (
	"crypto/ed25519"
	"fmt"

	"github.com/dep2p/go-secretmesh/internal/core/identity"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// RPC 方法名
const (
	MethodClosestLocalNodes = "nodes.closestLocalNodes"
	MethodHolePunchMessage  = "nodes.holePunchMessage"
)

// ClosestNodesRequest nodes.closestLocalNodes 请求
type ClosestNodesRequest struct {
	Target types.NodeID `msgpack:"target"`
}

// ClosestNodesResponse nodes.closestLocalNodes 响应
type ClosestNodesResponse struct {
	Nodes []types.NodeData `msgpack:"nodes"`
}

// holePunchDomain 签名域，防止签名被挪作他用
const holePunchDomain = "secretmesh/holepunch/v1"

// HolePunchMessage 打洞会合消息
//
// 来源对 (SourceID, TargetID, ProxyAddress) 签名。ObservedAddress 由
// 中继填写，是中继看到的来源地址，不在签名范围内。
type HolePunchMessage struct {
	SourceID        types.NodeID      `msgpack:"src"`
	TargetID        types.NodeID      `msgpack:"tgt"`
	ProxyAddress    types.NodeAddress `msgpack:"proxy"`
	PublicKey       []byte            `msgpack:"pub"`
	Signature       []byte            `msgpack:"sig"`
	ObservedAddress types.NodeAddress `msgpack:"observed,omitempty"`
	Relayed         bool              `msgpack:"relayed,omitempty"`
}

// Signer 本节点签名身份
type Signer interface {
	NodeID() types.NodeID
	PublicKey() ed25519.PublicKey
	Sign(data []byte) []byte
}

// NewHolePunchMessage 创建并签名一条从本节点到 target 的打洞消息
func NewHolePunchMessage(s Signer, target types.NodeID, proxyAddress types.NodeAddress) *HolePunchMessage {
	msg := &HolePunchMessage{
		SourceID:     s.NodeID(),
		TargetID:     target,
		ProxyAddress: proxyAddress,
		PublicKey:    s.PublicKey(),
	}
	msg.Signature = s.Sign(msg.signedBytes())
	return msg
}

func (m *HolePunchMessage) signedBytes() []byte {
	b := make([]byte, 0, len(holePunchDomain)+2*types.NodeIDSize+32)
	b = append(b, holePunchDomain...)
	b = append(b, m.SourceID[:]...)
	b = append(b, m.TargetID[:]...)
	b = append(b, m.ProxyAddress.String()...)
	return b
}

// Verify 校验公钥与 SourceID 绑定且签名有效
func (m *HolePunchMessage) Verify() error {
	if len(m.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key length %d", ErrInvalidSignature, len(m.PublicKey))
	}
	if types.NodeIDFromPublicKey(m.PublicKey) != m.SourceID {
		return fmt.Errorf("%w: public key does not match source %s", ErrInvalidSignature, m.SourceID.ShortString())
	}
	if !identity.Verify(m.PublicKey, m.signedBytes(), m.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// punchAddress 目标反向打洞使用的地址，优先中继观察到的地址
func (m *HolePunchMessage) punchAddress(observed types.NodeAddress) types.NodeAddress {
	if !observed.IsZero() {
		return observed
	}
	if !m.ObservedAddress.IsZero() {
		return m.ObservedAddress
	}
	return m.ProxyAddress
}

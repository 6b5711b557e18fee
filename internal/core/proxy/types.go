package proxy

import (
	"crypto/x509"
	"time"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              State
// ============================================================================

// State 连接状态
type State int

const (
	// StateComposing 打洞和握手中
	StateComposing State = iota
	// StateEstablished 已认证，数据可双向流动
	StateEstablished
	// StateEnding 正在关闭
	StateEnding
	// StateClosed 已关闭（包括保活超时）
	StateClosed
	// StateErrored 建立失败
	StateErrored
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateEstablished:
		return "established"
	case StateEnding:
		return "ending"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateErrored
}

// canTransition 状态转换表
func canTransition(from, to State) bool {
	switch from {
	case StateComposing:
		return to == StateEstablished || to == StateErrored
	case StateEstablished:
		return to == StateEnding || to == StateErrored
	case StateEnding:
		return to == StateClosed || to == StateErrored
	default:
		return false
	}
}

// ============================================================================
//                              Direction
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirectionForward 本地发起
	DirectionForward Direction = iota
	// DirectionReverse 远端发起
	DirectionReverse
)

// String 返回方向名
func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}

// ============================================================================
//                              ConnectionInfo
// ============================================================================

// ConnectionInfo 连接的只读快照
type ConnectionInfo struct {
	RemoteNodeID       types.NodeID
	RemoteCertificates []*x509.Certificate

	LocalHost  string
	LocalPort  uint16
	RemoteHost string
	RemotePort uint16

	Direction Direction
	State     State
	CreatedAt time.Time
}

// RemoteAddress 返回远端地址
func (i ConnectionInfo) RemoteAddress() types.NodeAddress {
	return types.NodeAddress{Host: i.RemoteHost, Port: i.RemotePort}
}

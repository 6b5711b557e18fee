package types

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// ErrInvalidAddress 无效的 Host:Port 地址
var ErrInvalidAddress = errors.New("invalid node address")

// NodeAddress 节点地址（Host:Port）
type NodeAddress struct {
	Host string `json:"host" msgpack:"host"`
	Port uint16 `json:"port" msgpack:"port"`
}

// String 返回 host:port 形式
func (a NodeAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero 检查地址是否为空
func (a NodeAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// AddrPort 将地址解析为 netip.AddrPort
//
// Host 必须是 IP 字面量，IPv4 映射的 IPv6 地址会被还原为 IPv4。
func (a NodeAddress) AddrPort() (netip.AddrPort, error) {
	ip, err := netip.ParseAddr(a.Host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrInvalidAddress, a.Host)
	}
	return netip.AddrPortFrom(ip.Unmap(), a.Port), nil
}

// ParseNodeAddress 解析 host:port 字符串
func ParseNodeAddress(s string) (NodeAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: bad port %q", ErrInvalidAddress, portStr)
	}
	if host == "" {
		return NodeAddress{}, fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	return NodeAddress{Host: host, Port: uint16(port)}, nil
}

// NodeAddressFromNetAddr 从 net.Addr（UDP/TCP）构造 NodeAddress
func NodeAddressFromNetAddr(addr net.Addr) NodeAddress {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ap := a.AddrPort()
		return NodeAddress{Host: ap.Addr().Unmap().String(), Port: ap.Port()}
	case *net.TCPAddr:
		ap := a.AddrPort()
		return NodeAddress{Host: ap.Addr().Unmap().String(), Port: ap.Port()}
	}
	na, err := ParseNodeAddress(addr.String())
	if err != nil {
		return NodeAddress{}
	}
	return na
}

// NodeContact 路由表中的节点联系信息
//
// LastUpdated 在每次成功联系该节点时刷新（"最近更新"而非"最近使用"）。
type NodeContact struct {
	Address     NodeAddress `json:"address" msgpack:"address"`
	LastUpdated time.Time   `json:"last_updated" msgpack:"last_updated"`
}

// NodeData 节点标识与地址的组合，用于 RPC 交换和查询结果
type NodeData struct {
	ID      NodeID      `json:"id" msgpack:"id"`
	Address NodeAddress `json:"address" msgpack:"address"`
}

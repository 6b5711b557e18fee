// Package holepunch 提供 UDP 打洞的 ping/pong 数据包和打洞循环
//
// 打洞包与 QUIC 流量共用一个 UDP 套接字。包的首字节清除了 QUIC
// 固定位（0x40），quic-go 的 Transport 会把它们作为非 QUIC 包交给
// ReadNonQUICPacket，而不是丢弃。
//
// 包格式：
//
//	[1 byte: type] [4 bytes: magic "SMHP"] [16 bytes: nonce]
//
// 收到 ping 立即回复带相同 nonce 的 pong。
package holepunch

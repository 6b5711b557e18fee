package holepunch

import (
	"crypto/rand"
	"errors"
)

const (
	// TypePing 打洞/保活请求
	TypePing byte = 0x01
	// TypePong 打洞/保活响应
	TypePong byte = 0x02

	// NonceLen Nonce 长度
	NonceLen = 16

	// PacketSize 打洞包大小
	PacketSize = 1 + len(magic) + NonceLen

	// quicFixedBit QUIC 包首字节的固定位
	quicFixedBit = 0x40
)

const magic = "SMHP"

// ErrInvalidPacket 无效的打洞包
var ErrInvalidPacket = errors.New("holepunch: invalid packet")

// Packet 打洞包
type Packet struct {
	Type  byte
	Nonce [NonceLen]byte
}

// NewPing 创建带随机 nonce 的 ping
func NewPing() Packet {
	p := Packet{Type: TypePing}
	_, _ = rand.Read(p.Nonce[:])
	return p
}

// Pong 返回回应此 ping 的 pong
func (p Packet) Pong() Packet {
	return Packet{Type: TypePong, Nonce: p.Nonce}
}

// IsPing 是否为 ping
func (p Packet) IsPing() bool {
	return p.Type == TypePing
}

// Encode 编码为线上格式
func (p Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	buf[0] = p.Type
	copy(buf[1:], magic)
	copy(buf[1+len(magic):], p.Nonce[:])
	return buf
}

// Decode 解析线上格式
func Decode(data []byte) (Packet, error) {
	if len(data) < PacketSize {
		return Packet{}, ErrInvalidPacket
	}
	if data[0]&quicFixedBit != 0 || (data[0] != TypePing && data[0] != TypePong) {
		return Packet{}, ErrInvalidPacket
	}
	if string(data[1:1+len(magic)]) != magic {
		return Packet{}, ErrInvalidPacket
	}
	p := Packet{Type: data[0]}
	copy(p.Nonce[:], data[1+len(magic):PacketSize])
	return p, nil
}

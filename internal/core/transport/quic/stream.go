package quic

import (
	"net"

	"github.com/quic-go/quic-go"
)

var _ net.Conn = (*Stream)(nil)

// Stream 将 QUIC 流适配为 net.Conn
type Stream struct {
	*quic.Stream
	conn *quic.Conn
}

// NewStream 创建流适配器
func NewStream(s *quic.Stream, conn *quic.Conn) *Stream {
	return &Stream{Stream: s, conn: conn}
}

// LocalAddr 返回所属连接的本地地址
func (s *Stream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr 返回所属连接的远端地址
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// CloseWrite 关闭写端（发送 FIN），读端保持可用
func (s *Stream) CloseWrite() error {
	return s.Stream.Close()
}

// Close 同时关闭读写两端
func (s *Stream) Close() error {
	s.Stream.CancelRead(0)
	return s.Stream.Close()
}

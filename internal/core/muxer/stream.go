package muxer

import (
	"net"
	"time"

	"github.com/hashicorp/yamux"
)

var _ net.Conn = (*Stream)(nil)

// Stream 包装 yamux.Stream
type Stream struct {
	stream *yamux.Stream
}

// Read 从流中读取数据
func (s *Stream) Read(p []byte) (n int, err error) {
	n, err = s.stream.Read(p)
	return n, parseError(err)
}

// Write 向流中写入数据
func (s *Stream) Write(p []byte) (n int, err error) {
	n, err = s.stream.Write(p)
	return n, parseError(err)
}

// Close 关闭流，对端读完已发送数据后收到 EOF
func (s *Stream) Close() error {
	return s.stream.Close()
}

// LocalAddr 返回本地地址
func (s *Stream) LocalAddr() net.Addr {
	return s.stream.LocalAddr()
}

// RemoteAddr 返回远端地址
func (s *Stream) RemoteAddr() net.Addr {
	return s.stream.RemoteAddr()
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}

package muxer

import (
	"context"
	"net"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("core/muxer")

// Session 包装 yamux.Session
type Session struct {
	session *yamux.Session
}

// NewClient 在 conn 上创建客户端会话
func NewClient(conn net.Conn, cfg Config) (*Session, error) {
	s, err := yamux.Client(conn, cfg.toYamux())
	if err != nil {
		return nil, err
	}
	return &Session{session: s}, nil
}

// NewServer 在 conn 上创建服务端会话
func NewServer(conn net.Conn, cfg Config) (*Session, error) {
	s, err := yamux.Server(conn, cfg.toYamux())
	if err != nil {
		return nil, err
	}
	return &Session{session: s}, nil
}

// OpenStream 打开新流
//
// ctx 的截止时间同时作为流的读写截止时间。
func (s *Session) OpenStream(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.session.OpenStream()
	if err != nil {
		logger.Debug("打开流失败", "error", err)
		return nil, parseError(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}
	return &Stream{stream: st}, nil
}

// AcceptStream 接受新流
func (s *Session) AcceptStream() (*Stream, error) {
	st, err := s.session.AcceptStream()
	if err != nil {
		return nil, parseError(err)
	}
	return &Stream{stream: st}, nil
}

// Close 关闭会话及其所有流
func (s *Session) Close() error {
	return s.session.Close()
}

// IsClosed 检查会话是否已关闭
func (s *Session) IsClosed() bool {
	return s.session.IsClosed()
}

// CloseChan 会话关闭时关闭
func (s *Session) CloseChan() <-chan struct{} {
	return s.session.CloseChan()
}

// NumStreams 返回活跃流数量
func (s *Session) NumStreams() int {
	return s.session.NumStreams()
}

// RemoteAddr 返回底层连接的远端地址
func (s *Session) RemoteAddr() net.Addr {
	return s.session.RemoteAddr()
}

package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dep2p/go-secretmesh/internal/core/muxer"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("core/rpc")

// Call 一次入站调用
type Call struct {
	Method string
	// Remote 承载本次调用的连接的远端地址（本地代理的出口地址）
	Remote net.Addr

	params msgpack.RawMessage
}

// Decode 解码调用参数
func (c *Call) Decode(v any) error {
	if err := msgpack.Unmarshal(c.params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// HandlerFunc 方法处理器，返回值作为调用结果编码
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Server RPC 服务端
type Server struct {
	cfg     muxer.Config
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	connsMu sync.Mutex
	conns   map[*muxer.Session]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewServer 创建服务端
//
// timeout 限制单次调用的处理时间，0 表示不限制。
func NewServer(cfg muxer.Config, timeout time.Duration) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[*muxer.Session]struct{}),
	}
}

// Register 注册方法处理器，重复注册覆盖旧值
func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Serve 在 ln 上接受连接直到 ln 关闭
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track() {
			_ = conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn 在单个连接上建立 yamux 服务端会话并处理调用
func (s *Server) ServeConn(conn net.Conn) {
	sess, err := muxer.NewServer(conn, s.cfg)
	if err != nil {
		logger.Warn("创建服务端会话失败", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}
	s.connsMu.Lock()
	if s.closed {
		s.connsMu.Unlock()
		_ = sess.Close()
		return
	}
	s.conns[sess] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, sess)
		s.connsMu.Unlock()
		_ = sess.Close()
	}()

	remote := conn.RemoteAddr()
	for {
		st, err := sess.AcceptStream()
		if err != nil {
			return
		}
		if !s.track() {
			_ = st.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			s.handleStream(st, remote)
		}()
	}
}

// Close 关闭所有会话，取消进行中的调用并等待处理器返回
func (s *Server) Close() error {
	s.connsMu.Lock()
	s.closed = true
	for sess := range s.conns {
		_ = sess.Close()
	}
	s.connsMu.Unlock()
	s.cancel()
	s.wg.Wait()
	return nil
}

// track 登记一个后台任务；服务端已关闭时返回 false
func (s *Server) track() bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleStream(st *muxer.Stream, remote net.Addr) {
	defer st.Close()

	var req request
	if err := msgpack.NewDecoder(st).Decode(&req); err != nil {
		logger.Debug("读取请求失败", "remote", remote.String(), "error", err)
		return
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	var resp response
	if !ok {
		resp.Error = toRemoteError(fmt.Errorf("%w: %s", ErrMethodNotFound, req.Method))
	} else {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		result, err := h(ctx, &Call{Method: req.Method, Remote: remote, params: req.Params})
		if err != nil {
			resp.Error = toRemoteError(err)
		} else if resp.Result, err = msgpack.Marshal(result); err != nil {
			resp.Error = toRemoteError(err)
		}
	}

	if err := msgpack.NewEncoder(st).Encode(&resp); err != nil {
		logger.Debug("写入响应失败", "method", req.Method, "error", err)
	}
}

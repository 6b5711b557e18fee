package quic

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("transport/quic")

// Transport 共享 UDP 套接字上的 QUIC 传输
type Transport struct {
	mu sync.RWMutex

	udpConn  *net.UDPConn
	tr       *quic.Transport
	listener *quic.Listener
	config   *quic.Config
	closed   bool
}

// Listen 在 addr 上绑定 UDP 套接字并开始接收 QUIC 连接
//
// addr 端口为 0 时由系统分配，实际地址见 LocalAddr。
func Listen(addr *net.UDPAddr, serverTLS *tls.Config, conf *quic.Config) (*Transport, error) {
	udpConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(serverTLS, conf)
	if err != nil {
		_ = tr.Close()
		_ = udpConn.Close()
		return nil, fmt.Errorf("listen quic: %w", err)
	}

	logger.Debug("QUIC 传输已监听", "addr", udpConn.LocalAddr().String())

	return &Transport{
		udpConn:  udpConn,
		tr:       tr,
		listener: ln,
		config:   conf,
	}, nil
}

// LocalAddr 返回实际绑定的 UDP 地址
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.udpConn.LocalAddr().(*net.UDPAddr)
}

// Dial 从共享端口向 raddr 拨号
//
// 复用监听端口：对端打洞时放行的正是这个源端口。
func (t *Transport) Dial(ctx context.Context, raddr *net.UDPAddr, clientTLS *tls.Config) (*quic.Conn, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, ErrTransportClosed
	}
	tr := t.tr
	t.mu.RUnlock()

	conn, err := tr.Dial(ctx, raddr, clientTLS, t.config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return conn, nil
}

// Accept 接受下一个入站 QUIC 连接
func (t *Transport) Accept(ctx context.Context) (*quic.Conn, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, ErrTransportClosed
	}
	ln := t.listener
	t.mu.RUnlock()

	if ln == nil {
		return nil, ErrNotListening
	}
	return ln.Accept(ctx)
}

// ReadPacket 读取下一个非 QUIC 数据包（打洞包）
func (t *Transport) ReadPacket(ctx context.Context, b []byte) (int, net.Addr, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return 0, nil, ErrTransportClosed
	}
	tr := t.tr
	t.mu.RUnlock()

	return tr.ReadNonQUICPacket(ctx, b)
}

// WriteTo 在共享端口上发送原始数据包
func (t *Transport) WriteTo(b []byte, addr net.Addr) (int, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return 0, ErrTransportClosed
	}
	tr := t.tr
	t.mu.RUnlock()

	return tr.WriteTo(b, addr)
}

// Close 关闭监听器、所有 QUIC 连接和 UDP 套接字
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.listener != nil {
		_ = t.listener.Close()
	}
	_ = t.tr.Close()
	return t.udpConn.Close()
}

// PeerChain 返回对端在握手中出示的证书链
func PeerChain(conn *quic.Conn) []*x509.Certificate {
	return conn.ConnectionState().TLS.PeerCertificates
}

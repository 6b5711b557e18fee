package proxy

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"sync"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-secretmesh/internal/core/nat/holepunch"
	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
	quictr "github.com/dep2p/go-secretmesh/internal/core/transport/quic"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

var logger = log.Logger("core/proxy")

// CertificateProvider 提供本节点的 TLS 证书
type CertificateProvider interface {
	NodeID() types.NodeID
	TLSCertificate() (*tls.Certificate, error)
}

// ============================================================================
//                              Proxy
// ============================================================================

// Proxy 正向 + 反向代理
type Proxy struct {
	cfg     Config
	certs   CertificateProvider
	token   string
	metrics metrics

	hooksMu       sync.RWMutex
	onEstablished []func(ConnectionInfo)

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	transport *quictr.Transport
	puncher   *holepunch.Puncher
	clientTLS *tls.Config
	ingress   *http.Server
	ingressLn net.Listener

	// 连接表：远端地址 -> 连接
	forward map[string]*connection
	reverse map[string]*connection
	// 本地服务看到的出口地址 -> 反向连接
	egress map[string]*connection

	wg sync.WaitGroup
}

// New 创建代理
//
// AuthToken 为空时生成随机令牌，见 AuthToken()。
func New(cfg Config, certs CertificateProvider) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token := cfg.AuthToken
	if token == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate auth token: %w", err)
		}
		token = hex.EncodeToString(buf)
	}
	return &Proxy{
		cfg:     cfg,
		certs:   certs,
		token:   token,
		metrics: newMetrics(),
		forward: make(map[string]*connection),
		reverse: make(map[string]*connection),
		egress:  make(map[string]*connection),
	}, nil
}

// AuthToken 返回本地入口的认证令牌
func (p *Proxy) AuthToken() string {
	return p.token
}

// OnConnectionEstablished 注册连接建立回调
//
// 回调在连接进入 Established 后同步调用，不应阻塞。
func (p *Proxy) OnConnectionEstablished(fn func(ConnectionInfo)) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.onEstablished = append(p.onEstablished, fn)
}

func (p *Proxy) notifyEstablished(info ConnectionInfo) {
	p.hooksMu.RLock()
	hooks := append([]func(ConnectionInfo){}, p.onEstablished...)
	p.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(info)
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 绑定 UDP 套接字和本地入口，开始服务
func (p *Proxy) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrProxyRunning
	}

	cert, err := p.certs.TLSCertificate()
	if err != nil {
		return fmt.Errorf("load tls certificate: %w", err)
	}

	proxyIP, err := netip.ParseAddr(p.cfg.ProxyHost)
	if err != nil {
		return fmt.Errorf("%w: proxy host %q", ErrInvalidTarget, p.cfg.ProxyHost)
	}
	udpAddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(proxyIP, p.cfg.ProxyPort))

	transport, err := quictr.Listen(udpAddr, mtls.ServerConfig(cert), p.quicConfig())
	if err != nil {
		return err
	}

	forwardAddr := net.JoinHostPort(p.cfg.ForwardHost, strconv.Itoa(int(p.cfg.ForwardPort)))
	ln, err := net.Listen("tcp", forwardAddr)
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("listen forward ingress: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.transport = transport
	p.puncher = holepunch.NewPuncher(transport, p.cfg.ConnKeepAliveIntervalTime)
	p.clientTLS = mtls.ClientConfig(cert)
	p.ingressLn = ln
	p.ingress = &http.Server{
		Handler:           http.HandlerFunc(p.handleConnect),
		ReadHeaderTimeout: p.cfg.ConnConnectTime,
	}
	p.running = true

	p.wg.Add(3)
	go p.readPackets(p.ctx)
	go p.acceptConns(p.ctx)
	go func() {
		defer p.wg.Done()
		if err := p.ingress.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("本地入口停止", "error", err)
		}
	}()

	logger.Info("代理已启动",
		"proxy", transport.LocalAddr().String(),
		"forward", ln.Addr().String(),
		"nodeID", p.certs.NodeID().ShortString())
	return nil
}

// Stop 结束所有连接并释放套接字
//
// 先请求所有连接优雅结束，ctx 到期后强制关闭。Stop 之后所有
// ConnHandle 失效。
func (p *Proxy) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	conns := make([]*connection, 0, len(p.forward)+len(p.reverse))
	for _, c := range p.forward {
		conns = append(conns, c)
	}
	for _, c := range p.reverse {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	// 中止 Composing 中的连接
	p.cancel()

	for _, c := range conns {
		c.requestEnd(true)
	}
	for _, c := range conns {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}

	var err error
	err = multierr.Append(err, p.ingress.Close())
	err = multierr.Append(err, p.transport.Close())
	p.wg.Wait()

	logger.Info("代理已停止")
	return err
}

// IsRunning 是否在运行
func (p *Proxy) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Proxy) quicConfig() *quic.Config {
	return quictr.NewConfig(quictr.ConfigParams{
		HandshakeTimeout:  p.cfg.ConnConnectTime,
		KeepAliveInterval: p.cfg.ConnKeepAliveIntervalTime,
		IdleTimeout:       p.cfg.ConnKeepAliveTimeoutTime + p.cfg.ConnEndTime,
	})
}

// ============================================================================
//                              地址
// ============================================================================

// ProxyAddress 返回对外公布的 UDP 代理地址
//
// 配置了 AdvertiseHost 时使用它；绑定在通配地址上且未配置时 Host 为空，
// 只公布端口。
func (p *Proxy) ProxyAddress() types.NodeAddress {
	addr := p.localAddress()
	if addr.IsZero() {
		return addr
	}
	if p.cfg.AdvertiseHost != "" {
		addr.Host = p.cfg.AdvertiseHost
		return addr
	}
	if ip, err := netip.ParseAddr(addr.Host); err == nil && ip.IsUnspecified() {
		addr.Host = ""
	}
	return addr
}

// ForwardAddress 返回本地 CONNECT 入口地址
func (p *Proxy) ForwardAddress() types.NodeAddress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ingressLn == nil {
		return types.NodeAddress{}
	}
	return types.NodeAddressFromNetAddr(p.ingressLn.Addr())
}

func (p *Proxy) localAddress() types.NodeAddress {
	p.mu.Lock()
	transport := p.transport
	p.mu.Unlock()
	if transport == nil {
		return types.NodeAddress{}
	}
	return types.NodeAddressFromNetAddr(transport.LocalAddr())
}

// resolveTarget 将 host/port 解析为 UDP 地址和连接表键
//
// host 必须是非通配的 IP 字面量。
func resolveTarget(host string, port uint16) (*net.UDPAddr, string, error) {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return nil, "", fmt.Errorf("%w: host %q is not an ip", ErrInvalidTarget, host)
	}
	ip = ip.Unmap()
	if ip.IsUnspecified() {
		return nil, "", fmt.Errorf("%w: host %q is unspecified", ErrInvalidTarget, host)
	}
	if port == 0 {
		return nil, "", fmt.Errorf("%w: port 0", ErrInvalidTarget)
	}
	ap := netip.AddrPortFrom(ip, port)
	return net.UDPAddrFromAddrPort(ap), addrKey(net.UDPAddrFromAddrPort(ap)), nil
}

func addrKey(addr net.Addr) string {
	return types.NodeAddressFromNetAddr(addr).String()
}

// ============================================================================
//                              数据包与入站连接
// ============================================================================

// readPackets 处理打洞包：回复 ping，并通知对应连接存活
func (p *Proxy) readPackets(ctx context.Context) {
	defer p.wg.Done()

	buf := make([]byte, 1500)
	for {
		n, from, err := p.transport.ReadPacket(ctx, buf)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("读取打洞包失败", "error", err)
			}
			return
		}
		pkt, err := holepunch.Decode(buf[:n])
		if err != nil {
			p.metrics.InvalidPackets.Inc()
			continue
		}
		if pkt.IsPing() {
			if err := p.puncher.SendPong(from, pkt); err != nil {
				logger.Debug("回复 pong 失败", "remote", from.String(), "error", err)
			} else {
				p.metrics.PongsSent.Inc()
			}
		}
		p.signalLive(addrKey(from))
	}
}

func (p *Proxy) signalLive(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.forward[key]; ok {
		c.signalLive()
	}
	if c, ok := p.reverse[key]; ok {
		c.signalLive()
	}
}

// acceptConns 接受入站 QUIC 连接
func (p *Proxy) acceptConns(ctx context.Context) {
	defer p.wg.Done()
	for {
		qconn, err := p.transport.Accept(ctx)
		if err != nil {
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleInbound(qconn)
		}()
	}
}

// track 代理运行中时登记 n 个后台任务
func (p *Proxy) track(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	p.wg.Add(n)
	return true
}

// remove 从连接表移除 c（仅当表中仍是 c）
func (p *Proxy) remove(c *connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	table := p.forward
	if c.dir == DirectionReverse {
		table = p.reverse
	}
	if table[c.key] == c {
		delete(table, c.key)
	}
}

// ============================================================================
//                              错误分类
// ============================================================================

// composeError 将打洞/握手错误归类
func composeError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, holepunch.ErrPunchTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrConnectionStartTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrConnectionStart, err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrConnectionStartTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionVerify):
		return "verify"
	case errors.Is(err, context.Canceled), errors.Is(err, ErrProxyNotRunning):
		return "canceled"
	default:
		return "start"
	}
}

// composeContext 派生 Composing 阶段的上下文：调用方 ctx、ConnConnectTime
// 和代理生命周期任一结束即取消
func (p *Proxy) composeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnConnectTime)
	stop := context.AfterFunc(p.ctx, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

// ============================================================================
//                              内省
// ============================================================================

// ConnectionForwardCount 返回正向连接数
func (p *Proxy) ConnectionForwardCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.forward)
}

// ConnectionReverseCount 返回反向连接数
func (p *Proxy) ConnectionReverseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reverse)
}

// ConnectionInfoByProxy 按远端代理地址查询正向连接
func (p *Proxy) ConnectionInfoByProxy(host string, port uint16) (ConnectionInfo, bool) {
	return p.lookupInfo(p.forward, host, port)
}

// ConnectionInfoByRemote 按远端出口地址查询反向连接
func (p *Proxy) ConnectionInfoByRemote(host string, port uint16) (ConnectionInfo, bool) {
	return p.lookupInfo(p.reverse, host, port)
}

// ConnectionInfoByReverse 按本地服务看到的客户端地址查询反向连接
//
// 远端打开的流会以新的 TCP 连接转发到本地服务，本地服务可用对端
// 地址反查是哪个节点发起的请求。
func (p *Proxy) ConnectionInfoByReverse(host string, port uint16) (ConnectionInfo, bool) {
	return p.lookupInfo(p.egress, host, port)
}

// ConnectionReverseByNodeID 查询 NodeID 对应的已建立反向连接
func (p *Proxy) ConnectionReverseByNodeID(id types.NodeID) (ConnectionInfo, bool) {
	c := p.reverseByNodeID(id)
	if c == nil {
		return ConnectionInfo{}, false
	}
	return c.info(), true
}

func (p *Proxy) reverseByNodeID(id types.NodeID) *connection {
	p.mu.Lock()
	conns := make([]*connection, 0, len(p.reverse))
	for _, c := range p.reverse {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		match := c.state == StateEstablished && c.remoteID == id
		c.mu.Unlock()
		if match {
			return c
		}
	}
	return nil
}

// Connections 返回所有连接的快照
func (p *Proxy) Connections() []ConnectionInfo {
	p.mu.Lock()
	conns := make([]*connection, 0, len(p.forward)+len(p.reverse))
	for _, c := range p.forward {
		conns = append(conns, c)
	}
	for _, c := range p.reverse {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	infos := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.info())
	}
	return infos
}

func (p *Proxy) lookupInfo(table map[string]*connection, host string, port uint16) (ConnectionInfo, bool) {
	key, ok := lookupKey(host, port)
	if !ok {
		return ConnectionInfo{}, false
	}
	p.mu.Lock()
	c, ok := table[key]
	p.mu.Unlock()
	if !ok {
		return ConnectionInfo{}, false
	}
	return c.info(), true
}

func lookupKey(host string, port uint16) (string, bool) {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return "", false
	}
	return types.NodeAddress{Host: ip.Unmap().String(), Port: port}.String(), true
}

package proxy

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"

	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
	quictr "github.com/dep2p/go-secretmesh/internal/core/transport/quic"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              反向连接
// ============================================================================

// OpenConnectionReverse 向 host:port 打洞并等待其入站连接
//
// 对端收到打洞包后向本节点发起正向连接，该入站连接通过认证后本调用
// 返回。未经打洞的入站连接同样会被接受，此方法只在需要穿透 NAT 时
// 使用。
func (p *Proxy) OpenConnectionReverse(ctx context.Context, host string, port uint16) error {
	_, err := p.openReverse(ctx, host, port)
	return err
}

// AcquireConnectionReverse 打开（或复用）反向连接并返回引用句柄
func (p *Proxy) AcquireConnectionReverse(ctx context.Context, host string, port uint16) (*ConnHandle, error) {
	for {
		c, err := p.openReverse(ctx, host, port)
		if err != nil {
			return nil, err
		}
		if err := c.acquire(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		return newConnHandle(c), nil
	}
}

// AcquireReverseByNodeID 获取 NodeID 对应的已建立反向连接句柄
//
// 不会发起新连接，没有时返回 ErrConnectionNotFound。
func (p *Proxy) AcquireReverseByNodeID(id types.NodeID) (*ConnHandle, error) {
	c := p.reverseByNodeID(id)
	if c == nil {
		return nil, ErrConnectionNotFound
	}
	if err := c.acquire(); err != nil {
		return nil, ErrConnectionNotFound
	}
	return newConnHandle(c), nil
}

// CloseConnectionReverse 关闭反向连接
//
// 仍有句柄引用时推迟到最后一个句柄释放。
func (p *Proxy) CloseConnectionReverse(ctx context.Context, host string, port uint16) error {
	return p.closeConnection(ctx, p.reverse, host, port)
}

func (p *Proxy) openReverse(ctx context.Context, host string, port uint16) (*connection, error) {
	remote, key, err := resolveTarget(host, port)
	if err != nil {
		return nil, err
	}

	for {
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			return nil, ErrProxyNotRunning
		}
		c, ok := p.reverse[key]
		if !ok {
			c = newConnection(p, DirectionReverse, key, remote, nil)
			p.reverse[key] = c
			p.mu.Unlock()

			logger.Debug("打开反向连接", "remote", key)
			if err := p.composeReverse(ctx, c); err != nil {
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()

		again, err := p.awaitExisting(ctx, c)
		if again {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// composeReverse 打洞并等待对端的入站连接
func (p *Proxy) composeReverse(ctx context.Context, c *connection) error {
	cctx, cancel := p.composeContext(ctx)
	defer cancel()

	fail := func(err error) error {
		if p.ctx.Err() != nil && ctx.Err() == nil {
			err = ErrProxyNotRunning
		}
		c.fail(err)
		return err
	}

	// 打洞期间入站连接可能已经到达
	punched := make(chan error, 1)
	go func() {
		punched <- p.puncher.Punch(cctx, c.remote, c.liveCh)
	}()

	select {
	case err := <-punched:
		if err != nil {
			if c.State() == StateEstablished {
				return nil
			}
			return fail(composeError(err))
		}
	case <-c.ready:
		cancel()
		<-punched
	}

	select {
	case <-c.ready:
	case <-cctx.Done():
		fail(composeError(cctx.Err()))
	}

	c.mu.Lock()
	state, err := c.state, c.err
	c.mu.Unlock()
	if state == StateErrored {
		return err
	}
	return nil
}

// handleInbound 验证入站连接并登记为反向连接
func (p *Proxy) handleInbound(qconn *quic.Conn) {
	remote, ok := qconn.RemoteAddr().(*net.UDPAddr)
	if !ok {
		_ = qconn.CloseWithError(codeShutdown, "unsupported address")
		return
	}
	key := addrKey(remote)

	chain := quictr.PeerChain(qconn)
	nodeID, err := mtls.VerifyClientChain(chain, time.Now())
	if err != nil {
		_ = qconn.CloseWithError(codeVerifyFailed, "certificate verification failed")
		p.metrics.ConnectionsFailed.WithLabelValues(DirectionReverse.String(), "verify").Inc()
		logger.Warn("入站连接证书验证失败", "remote", key, "error", err)
		return
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		_ = qconn.CloseWithError(codeShutdown, "proxy stopped")
		return
	}
	c, ok := p.reverse[key]
	var replaced *connection
	if !ok || c.State() != StateComposing {
		// 同一出口地址的新连接替换旧连接
		replaced = c
		c = newConnection(p, DirectionReverse, key, remote, nil)
		p.reverse[key] = c
	}
	p.mu.Unlock()

	if replaced != nil {
		logger.Debug("替换旧的反向连接", "remote", key)
		replaced.requestEnd(false)
	}

	if !c.establish(qconn, nodeID, chain) {
		_ = qconn.CloseWithError(codeShutdown, "proxy stopped")
		c.fail(ErrProxyNotRunning)
	}
}

// serveStream 把远端打开的流转发到本地服务
func (p *Proxy) serveStream(c *connection, s *quic.Stream) {
	stream := quictr.NewStream(s, c.qconn)
	if !c.streamStarted() {
		_ = stream.Close()
		return
	}
	defer c.streamFinished()

	target := net.JoinHostPort(p.cfg.ServerHost, strconv.Itoa(int(p.cfg.ServerPort)))
	dialer := net.Dialer{Timeout: p.cfg.ConnConnectTime}
	tcp, err := dialer.DialContext(c.qconn.Context(), "tcp", target)
	if err != nil {
		logger.Warn("连接本地服务失败", "server", target, "error", err)
		stream.CancelWrite(codeShutdown)
		_ = stream.Close()
		return
	}

	egressKey := addrKey(tcp.LocalAddr())
	p.mu.Lock()
	p.egress[egressKey] = c
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.egress[egressKey] == c {
			delete(p.egress, egressKey)
		}
		p.mu.Unlock()
	}()

	p.metrics.StreamsSpliced.Inc()
	splice(tcp, stream)
}

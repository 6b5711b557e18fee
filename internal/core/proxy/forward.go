package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
	quictr "github.com/dep2p/go-secretmesh/internal/core/transport/quic"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              正向连接
// ============================================================================

// OpenConnectionForward 打开到 host:port 的正向连接
//
// 对端证书链派生的 NodeID 必须属于 nodeIDs，否则返回包装
// mtls.ErrCertChainUnclaimed 的 ErrConnectionVerify。同一地址已有
// Composing 或 Established 连接时直接复用。
//
// 打洞和握手受 ConnConnectTime 和 ctx 共同约束；ctx 取消时连接表
// 中不会留下该连接。
func (p *Proxy) OpenConnectionForward(ctx context.Context, nodeIDs types.NodeIDSet, host string, port uint16) error {
	_, err := p.openForward(ctx, nodeIDs, host, port)
	return err
}

// AcquireConnectionForward 打开（或复用）正向连接并返回引用句柄
func (p *Proxy) AcquireConnectionForward(ctx context.Context, nodeIDs types.NodeIDSet, host string, port uint16) (*ConnHandle, error) {
	for {
		c, err := p.openForward(ctx, nodeIDs, host, port)
		if err != nil {
			return nil, err
		}
		if err := c.acquire(); err != nil {
			// 刚好被关闭，重新打开
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		return newConnHandle(c), nil
	}
}

// CloseConnectionForward 关闭正向连接
//
// 仍有句柄引用时推迟到最后一个句柄释放。
func (p *Proxy) CloseConnectionForward(ctx context.Context, host string, port uint16) error {
	return p.closeConnection(ctx, p.forward, host, port)
}

func (p *Proxy) openForward(ctx context.Context, nodeIDs types.NodeIDSet, host string, port uint16) (*connection, error) {
	remote, key, err := resolveTarget(host, port)
	if err != nil {
		return nil, err
	}
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("%w: no expected node ids", ErrInvalidTarget)
	}

	for {
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			return nil, ErrProxyNotRunning
		}
		c, ok := p.forward[key]
		if !ok {
			c = newConnection(p, DirectionForward, key, remote, nodeIDs)
			p.forward[key] = c
			p.mu.Unlock()

			logger.Debug("打开正向连接", "remote", key)
			if err := p.composeForward(ctx, c); err != nil {
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

// awaitExisting 等待已有连接离开 Composing
//
// 返回 again=true 表示该连接已结束或被其他调用方取消，应重新打开。
func (p *Proxy) awaitExisting(ctx context.Context, c *connection) (again bool, err error) {
	if err := c.waitReady(ctx); err != nil {
		return false, err
	}

	c.mu.Lock()
	state, cerr := c.state, c.err
	c.mu.Unlock()

	switch state {
	case StateEstablished:
		return false, nil
	case StateErrored:
		// 发起方被取消不影响其他等待者
		if errors.Is(cerr, context.Canceled) && ctx.Err() == nil {
			return true, nil
		}
		return false, cerr
	default:
		select {
		case <-c.done:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// composeForward 打洞、握手并验证对端身份
func (p *Proxy) composeForward(ctx context.Context, c *connection) error {
	cctx, cancel := p.composeContext(ctx)
	defer cancel()

	fail := func(err error) error {
		if p.ctx.Err() != nil && ctx.Err() == nil {
			err = ErrProxyNotRunning
		}
		c.fail(err)
		return err
	}

	if err := p.puncher.Punch(cctx, c.remote, c.liveCh); err != nil {
		return fail(composeError(err))
	}

	qconn, err := p.transport.Dial(cctx, c.remote, p.clientTLS)
	if err != nil {
		return fail(composeError(err))
	}

	chain := quictr.PeerChain(qconn)
	nodeID, err := mtls.VerifyServerChain(chain, c.expected, time.Now())
	if err != nil {
		_ = qconn.CloseWithError(codeVerifyFailed, "unexpected node identity")
		logger.Warn("对端身份验证失败", "remote", c.key, "error", err)
		return fail(fmt.Errorf("%w: %w", ErrConnectionVerify, err))
	}

	if !c.establish(qconn, nodeID, chain) {
		_ = qconn.CloseWithError(codeShutdown, "proxy stopped")
		return fail(ErrProxyNotRunning)
	}
	return nil
}

// closeConnection 按地址关闭连接
func (p *Proxy) closeConnection(ctx context.Context, table map[string]*connection, host string, port uint16) error {
	key, ok := lookupKey(host, port)
	if !ok {
		return fmt.Errorf("%w: host %q", ErrInvalidTarget, host)
	}
	p.mu.Lock()
	c, ok := table[key]
	p.mu.Unlock()
	if !ok {
		return ErrConnectionNotFound
	}

	if err := c.waitReady(ctx); err != nil {
		return err
	}
	if c.State() != StateEstablished {
		return nil
	}
	c.closeWhenIdle()
	return nil
}

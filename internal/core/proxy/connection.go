package proxy

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              connection
// ============================================================================

// connection 连接表中的一项
//
// 状态只在持有 mu 时修改。ready 在离开 Composing 时关闭，done 在进入
// 终态时关闭。
type connection struct {
	p         *Proxy
	dir       Direction
	key       string
	remote    *net.UDPAddr
	expected  types.NodeIDSet
	createdAt time.Time

	// liveCh 收到对端 ping/pong 时非阻塞写入
	liveCh chan struct{}
	ready  chan struct{}
	done   chan struct{}

	endOnce  sync.Once
	endCh    chan struct{}
	graceful bool

	mu          sync.Mutex
	state       State
	err         error
	qconn       *quic.Conn
	remoteID    types.NodeID
	remoteCerts []*x509.Certificate
	refs        int
	closeIdle   bool
	streams     int
	drained     chan struct{}
}

func newConnection(p *Proxy, dir Direction, key string, remote *net.UDPAddr, expected types.NodeIDSet) *connection {
	return &connection{
		p:         p,
		dir:       dir,
		key:       key,
		remote:    remote,
		expected:  expected,
		createdAt: time.Now(),
		liveCh:    make(chan struct{}, 1),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		endCh:     make(chan struct{}),
		state:     StateComposing,
	}
}

// signalLive 通知收到对端的 ping/pong
func (c *connection) signalLive() {
	select {
	case c.liveCh <- struct{}{}:
	default:
	}
}

// State 返回当前状态
func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// info 返回连接快照
func (c *connection) info() ConnectionInfo {
	local := c.p.localAddress()

	c.mu.Lock()
	defer c.mu.Unlock()

	remote := types.NodeAddressFromNetAddr(c.remote)
	return ConnectionInfo{
		RemoteNodeID:       c.remoteID,
		RemoteCertificates: c.remoteCerts,
		LocalHost:          local.Host,
		LocalPort:          local.Port,
		RemoteHost:         remote.Host,
		RemotePort:         remote.Port,
		Direction:          c.dir,
		State:              c.state,
		CreatedAt:          c.createdAt,
	}
}

// transition 在持有 mu 时切换状态
func (c *connection) transition(to State) error {
	if !canTransition(c.state, to) {
		return fmt.Errorf("proxy: invalid transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

// waitReady 等待离开 Composing
func (c *connection) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// establish Composing -> Established
//
// 连接已不在 Composing（例如被 Stop 中止）时返回 false，调用方负责
// 关闭 qconn。
func (c *connection) establish(qconn *quic.Conn, remoteID types.NodeID, certs []*x509.Certificate) bool {
	// 为 run 和 acceptStreams 预留
	if !c.p.track(2) {
		return false
	}
	c.mu.Lock()
	if err := c.transition(StateEstablished); err != nil {
		c.mu.Unlock()
		c.p.wg.Add(-2)
		return false
	}
	c.qconn = qconn
	c.remoteID = remoteID
	c.remoteCerts = certs
	c.mu.Unlock()
	close(c.ready)

	c.p.metrics.ConnectionsOpened.WithLabelValues(c.dir.String()).Inc()
	c.p.metrics.ActiveConnections.WithLabelValues(c.dir.String()).Inc()
	c.p.metrics.ComposeDurationSecond.Observe(time.Since(c.createdAt).Seconds())
	logger.Debug("连接已建立",
		"direction", c.dir.String(),
		"remote", c.key,
		"nodeID", remoteID.ShortString())

	// 回调先于流的处理，对端的第一个请求到达时回调已完成
	c.p.notifyEstablished(c.info())

	go c.run()
	go c.acceptStreams()
	return true
}

// fail Composing -> Errored，从连接表移除
func (c *connection) fail(err error) {
	c.mu.Lock()
	if terr := c.transition(StateErrored); terr != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	c.p.remove(c)
	close(c.ready)
	close(c.done)

	c.p.metrics.ConnectionsFailed.WithLabelValues(c.dir.String(), failureReason(err)).Inc()
	logger.Debug("连接建立失败", "direction", c.dir.String(), "remote", c.key, "error", err)
}

// requestEnd 请求结束连接，graceful 时等待进行中的流
func (c *connection) requestEnd(graceful bool) {
	c.endOnce.Do(func() {
		c.graceful = graceful
		close(c.endCh)
	})
}

// run Established 阶段的保活循环
func (c *connection) run() {
	defer c.p.wg.Done()

	cfg := c.p.cfg
	ticker := time.NewTicker(cfg.ConnKeepAliveIntervalTime)
	defer ticker.Stop()
	timeout := time.NewTimer(cfg.ConnKeepAliveTimeoutTime)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.p.puncher.SendPing(c.remote); err != nil {
				logger.Debug("发送保活 ping 失败", "remote", c.key, "error", err)
				continue
			}
			c.p.metrics.PingsSent.Inc()
		case <-c.liveCh:
			timeout.Reset(cfg.ConnKeepAliveTimeoutTime)
		case <-timeout.C:
			// 保活超时是正常关闭路径
			logger.Debug("连接保活超时", "direction", c.dir.String(), "remote", c.key)
			c.p.metrics.KeepAliveTimeouts.Inc()
			c.end(false, codeKeepAliveTimeout, "keepalive timeout")
			return
		case <-c.qconn.Context().Done():
			c.end(false, codeNormal, "")
			return
		case <-c.endCh:
			c.end(c.graceful, codeNormal, "")
			return
		}
	}
}

// end Established -> Ending -> Closed
func (c *connection) end(graceful bool, code quic.ApplicationErrorCode, reason string) {
	c.mu.Lock()
	if err := c.transition(StateEnding); err != nil {
		c.mu.Unlock()
		return
	}
	var drained chan struct{}
	if graceful && c.streams > 0 {
		c.drained = make(chan struct{})
		drained = c.drained
	}
	c.mu.Unlock()

	if drained != nil {
		timer := time.NewTimer(c.p.cfg.ConnEndTime)
		select {
		case <-drained:
		case <-timer.C:
			logger.Debug("等待流结束超时，强制关闭", "remote", c.key)
		}
		timer.Stop()
	}

	_ = c.qconn.CloseWithError(code, reason)

	c.mu.Lock()
	_ = c.transition(StateClosed)
	c.refs = 0
	c.mu.Unlock()

	c.p.remove(c)
	close(c.done)

	c.p.metrics.ActiveConnections.WithLabelValues(c.dir.String()).Dec()
	c.p.metrics.ConnectionsClosed.WithLabelValues(c.dir.String()).Inc()
	logger.Debug("连接已关闭", "direction", c.dir.String(), "remote", c.key)
}

// acceptStreams 接受对端打开的流并转发到本地服务
func (c *connection) acceptStreams() {
	defer c.p.wg.Done()

	ctx := c.qconn.Context()
	for {
		s, err := c.qconn.AcceptStream(ctx)
		if err != nil {
			return
		}
		c.p.wg.Add(1)
		go func() {
			defer c.p.wg.Done()
			c.p.serveStream(c, s)
		}()
	}
}

// streamStarted 登记一个进行中的流，连接不在 Established 时返回 false
func (c *connection) streamStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEstablished {
		return false
	}
	c.streams++
	return true
}

// streamFinished 注销一个进行中的流
func (c *connection) streamFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams--
	if c.streams == 0 && c.drained != nil {
		close(c.drained)
		c.drained = nil
	}
}

// openStream 在已建立的连接上打开新流
func (c *connection) openStream(ctx context.Context) (*quic.Stream, *quic.Conn, error) {
	c.mu.Lock()
	if c.state != StateEstablished {
		c.mu.Unlock()
		return nil, nil, ErrConnectionNotRunning
	}
	qconn := c.qconn
	c.mu.Unlock()

	s, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnectionNotRunning, err)
	}
	return s, qconn, nil
}

// ============================================================================
//                              引用计数
// ============================================================================

// acquire 增加引用，连接不在 Established 时失败
func (c *connection) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEstablished {
		return ErrConnectionNotRunning
	}
	c.refs++
	return nil
}

// release 减少引用，最后一个引用释放且有挂起的关闭请求时结束连接
func (c *connection) release() {
	c.mu.Lock()
	if c.state != StateEstablished || c.refs == 0 {
		c.mu.Unlock()
		return
	}
	c.refs--
	closeNow := c.refs == 0 && c.closeIdle
	c.mu.Unlock()

	if closeNow {
		c.requestEnd(true)
	}
}

// closeWhenIdle 没有引用时立即结束，否则推迟到最后一个引用释放
func (c *connection) closeWhenIdle() {
	c.mu.Lock()
	refs := c.refs
	c.closeIdle = true
	c.mu.Unlock()

	if refs == 0 {
		c.requestEnd(true)
	}
}

package holepunch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("nat/holepunch")

// ErrPunchTimeout 打洞期间未收到对端的 ping/pong
var ErrPunchTimeout = errors.New("holepunch: no response from peer")

// PacketWriter 发送原始 UDP 包
//
// quic.Transport 满足此接口。
type PacketWriter interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Puncher 周期性地向对端发送 ping，直到路径打通
type Puncher struct {
	w        PacketWriter
	interval time.Duration
}

// NewPuncher 创建打洞器
func NewPuncher(w PacketWriter, interval time.Duration) *Puncher {
	return &Puncher{w: w, interval: interval}
}

// SendPing 发送一个 ping
func (p *Puncher) SendPing(addr net.Addr) error {
	_, err := p.w.WriteTo(NewPing().Encode(), addr)
	return err
}

// SendPong 回复一个 pong
func (p *Puncher) SendPong(addr net.Addr, ping Packet) error {
	_, err := p.w.WriteTo(ping.Pong().Encode(), addr)
	return err
}

// Punch 每 interval 发送一次 ping，直到 arrived 收到信号
//
// ctx 超时返回 ErrPunchTimeout（包装 ctx 错误）；发送失败立即返回该错误，
// 例如对端地址不可达。
func (p *Puncher) Punch(ctx context.Context, addr net.Addr, arrived <-chan struct{}) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if err := p.SendPing(addr); err != nil {
			logger.Debug("发送打洞包失败", "addr", addr.String(), "attempt", attempt, "error", err)
			return err
		}
		select {
		case <-arrived:
			logger.Debug("打洞成功", "addr", addr.String(), "attempts", attempt)
			return nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Join(ErrPunchTimeout, ctx.Err())
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

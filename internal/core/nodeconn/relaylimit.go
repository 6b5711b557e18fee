package nodeconn

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// relayLimiterMinIdle 来源限流器的最短保留时间
const relayLimiterMinIdle = time.Minute

// relayLimiters 按来源节点的中继限流
//
// 空闲超过 idle 的限流器在下次访问时被清理。idle 不小于令牌桶回满所需
// 的时间，被清理的来源重新创建时与保留下来的状态相同。
type relayLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	entries   map[types.NodeID]*relayLimiterEntry
}

type relayLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRelayLimiters(perSecond float64, burst int) *relayLimiters {
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < relayLimiterMinIdle {
		idle = relayLimiterMinIdle
	}
	return &relayLimiters{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		entries: make(map[types.NodeID]*relayLimiterEntry),
	}
}

// allow 消耗 source 的一个令牌
func (r *relayLimiters) allow(source types.NodeID) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= r.idle {
		r.sweepLocked(now)
	}
	e, ok := r.entries[source]
	if !ok {
		e = &relayLimiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[source] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweepLocked 删除空闲的限流器（需要持有锁）
func (r *relayLimiters) sweepLocked(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) >= r.idle {
			delete(r.entries, id)
		}
	}
	r.lastSweep = now
}

func (r *relayLimiters) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

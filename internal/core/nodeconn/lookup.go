package nodeconn

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// ============================================================================
//                              查找
// ============================================================================

// FindNode 解析节点地址
//
// 先查本地路由表，未命中时迭代查找。候选耗尽或超过 find_node_timeout
// 返回 ErrNodeNotFound。
func (m *Manager) FindNode(ctx context.Context, id types.NodeID) (types.NodeAddress, error) {
	if !m.IsRunning() {
		return types.NodeAddress{}, ErrNotRunning
	}
	addr, ok, err := m.graph.GetNode(id)
	if err != nil {
		return types.NodeAddress{}, err
	}
	if ok {
		return addr, nil
	}

	res, err := m.lookup(ctx, id, true)
	if err != nil {
		return types.NodeAddress{}, err
	}
	if res.found == nil {
		return types.NodeAddress{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id.ShortString())
	}
	return *res.found, nil
}

// GetClosestGlobalNodes 在网络中查找距离 target 最近的 k 个节点
func (m *Manager) GetClosestGlobalNodes(ctx context.Context, target types.NodeID) ([]types.NodeData, error) {
	if !m.IsRunning() {
		return nil, ErrNotRunning
	}
	res, err := m.lookup(ctx, target, false)
	if err != nil {
		return nil, err
	}
	return res.closest, nil
}

// GetRemoteClosestNodes 询问 via 节点它所知道的距离 target 最近的节点
func (m *Manager) GetRemoteClosestNodes(ctx context.Context, via, target types.NodeID) ([]types.NodeData, error) {
	var resp ClosestNodesResponse
	err := m.WithConnection(ctx, via, func(c *NodeConnection) error {
		return c.Call(ctx, MethodClosestLocalNodes, ClosestNodesRequest{Target: target}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// candidate 候选列表项
type candidate struct {
	node    types.NodeData
	queried bool
}

type lookupResult struct {
	found   *types.NodeAddress
	closest []types.NodeData
}

// lookup 迭代查找
//
// stopOnFound 为 true 时获知目标地址即返回；否则一直进行到收敛，用于
// 收集最近节点。
func (m *Manager) lookup(ctx context.Context, target types.NodeID, stopOnFound bool) (lookupResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.FindNodeTimeout)
	defer cancel()

	k := m.graph.BucketSize()
	local := m.signer.NodeID()

	initial, err := m.graph.GetClosestNodes(target, k)
	if err != nil {
		return lookupResult{}, err
	}

	seen := map[types.NodeID]struct{}{local: {}}
	shortlist := make([]*candidate, 0, k)
	for _, n := range initial {
		seen[n.ID] = struct{}{}
		shortlist = append(shortlist, &candidate{node: types.NodeData{ID: n.ID, Address: n.Address}})
	}

	result := func(found *types.NodeAddress, outcome string) lookupResult {
		m.metrics.Lookups.WithLabelValues(outcome).Inc()
		m.metrics.LookupDurationSeconds.Observe(time.Since(start).Seconds())
		closest := make([]types.NodeData, 0, len(shortlist))
		for _, c := range shortlist {
			closest = append(closest, c.node)
		}
		return lookupResult{found: found, closest: closest}
	}

	for round := 1; ; round++ {
		batch := make([]*candidate, 0, m.cfg.Alpha)
		for _, c := range shortlist {
			if len(batch) == m.cfg.Alpha {
				break
			}
			if !c.queried {
				c.queried = true
				batch = append(batch, c)
			}
		}
		if len(batch) == 0 {
			logger.Debug("查找候选耗尽", "target", target.ShortString(), "rounds", round-1)
			return result(nil, "exhausted"), nil
		}

		var (
			mu      sync.Mutex
			learned []types.NodeData
			failed  = make(map[types.NodeID]struct{})
		)
		var g errgroup.Group
		for _, c := range batch {
			node := c.node
			g.Go(func() error {
				nodes, err := m.queryClosest(ctx, node, target)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logger.Debug("查询最近节点失败", "via", node.ID.ShortString(), "error", err)
					failed[node.ID] = struct{}{}
					return nil
				}
				learned = append(learned, nodes...)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			result(nil, "timeout")
			return lookupResult{}, fmt.Errorf("%w: %s: %w", ErrNodeNotFound, target.ShortString(), err)
		}

		// 不可达的候选不再占用名额
		kept := shortlist[:0]
		for _, c := range shortlist {
			if _, bad := failed[c.node.ID]; !bad {
				kept = append(kept, c)
			}
		}
		shortlist = kept

		added := make(map[types.NodeID]struct{})
		for _, n := range learned {
			if n.ID == local {
				continue
			}
			if err := m.graph.SetNode(n.ID, n.Address); err != nil {
				logger.Warn("写入路由表失败", "node", n.ID.ShortString(), "error", err)
			}
			if stopOnFound && n.ID == target {
				addr := n.Address
				logger.Debug("查找到目标节点", "target", target.ShortString(), "rounds", round)
				return result(&addr, "found"), nil
			}
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			added[n.ID] = struct{}{}
			shortlist = append(shortlist, &candidate{node: n})
		}

		sort.SliceStable(shortlist, func(i, j int) bool {
			return types.CompareDistance(target, shortlist[i].node.ID, shortlist[j].node.ID) < 0
		})
		if len(shortlist) > k {
			shortlist = shortlist[:k]
		}

		improved := false
		for _, c := range shortlist {
			if _, ok := added[c.node.ID]; ok {
				improved = true
				break
			}
		}
		if !improved && !hasUnqueried(shortlist) {
			return result(nil, "exhausted"), nil
		}
		if !improved && stopOnFound {
			logger.Debug("查找不再收敛", "target", target.ShortString(), "rounds", round)
			return result(nil, "stalled"), nil
		}
	}
}

func hasUnqueried(shortlist []*candidate) bool {
	for _, c := range shortlist {
		if !c.queried {
			return true
		}
	}
	return false
}

// queryClosest 向候选节点发送 nodes.closestLocalNodes
func (m *Manager) queryClosest(ctx context.Context, node types.NodeData, target types.NodeID) ([]types.NodeData, error) {
	m.metrics.LookupQueries.Inc()
	var resp ClosestNodesResponse
	err := m.withAddress(ctx, node, func(c *NodeConnection) error {
		return c.Call(ctx, MethodClosestLocalNodes, ClosestNodesRequest{Target: target}, &resp)
	})
	return resp.Nodes, err
}

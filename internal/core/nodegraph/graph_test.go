package nodegraph

import (
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
	"github.com/dep2p/go-secretmesh/internal/core/storage/engine/badger"
	"github.com/dep2p/go-secretmesh/internal/core/storage/kv"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()
	cfg := engine.DefaultConfig("")
	cfg.InMemory = true
	eng, err := badger.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return kv.New(eng, StorePrefix)
}

func randomID(t *testing.T) types.NodeID {
	t.Helper()
	var id types.NodeID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

// idInBucket 生成落在 local 指定桶内的随机标识
func idInBucket(t *testing.T, local types.NodeID, index int) types.NodeID {
	t.Helper()
	fill := randomID(t)
	return types.IDInBucket(local, index, fill[:])
}

func addr(port uint16) types.NodeAddress {
	return types.NodeAddress{Host: "127.0.0.1", Port: port}
}

func newGraph(t *testing.T, k int) (*Graph, types.NodeID) {
	t.Helper()
	local := randomID(t)
	clock := time.Unix(1700000000, 0)
	g, err := New(newStore(t), local, k, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	return g, local
}

// TestSetNode_GetUnset 插入、查询、删除；桶变空后消失
func TestSetNode_GetUnset(t *testing.T) {
	g, local := newGraph(t, 20)
	id := idInBucket(t, local, 100)

	require.NoError(t, g.SetNode(id, addr(1)))
	got, ok, err := g.GetNode(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addr(1), got)

	// 刷新更新地址
	require.NoError(t, g.SetNode(id, addr(2)))
	got, _, _ = g.GetNode(id)
	assert.Equal(t, addr(2), got)

	n, err := g.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, g.UnsetNode(id))
	_, ok, err = g.GetNode(id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.GetBucket(100, SortByNodeID, Asc)
	require.NoError(t, err)
	assert.False(t, ok)

	// 删除不存在的节点不报错
	assert.NoError(t, g.UnsetNode(id))
}

// TestSetNode_LocalIsNoop 本地节点不入表
func TestSetNode_LocalIsNoop(t *testing.T) {
	g, local := newGraph(t, 20)

	require.NoError(t, g.SetNode(local, addr(1)))
	_, ok, err := g.GetNode(local)
	require.NoError(t, err)
	assert.False(t, ok)

	n, _ := g.Count()
	assert.Zero(t, n)
}

// TestSetNode_EvictsLeastRecentlyUpdated 桶满时淘汰最旧节点，刷新不淘汰
func TestSetNode_EvictsLeastRecentlyUpdated(t *testing.T) {
	const k = 3
	g, local := newGraph(t, k)

	ids := make([]types.NodeID, k)
	for i := range ids {
		ids[i] = idInBucket(t, local, 255)
		require.NoError(t, g.SetNode(ids[i], addr(uint16(i+1))))
	}

	// 刷新最旧的节点，使 ids[1] 成为最旧
	require.NoError(t, g.SetNode(ids[0], addr(10)))
	size, err := g.GetBucketSize(255)
	require.NoError(t, err)
	assert.Equal(t, k, size)

	newcomer := idInBucket(t, local, 255)
	require.NoError(t, g.SetNode(newcomer, addr(99)))

	size, _ = g.GetBucketSize(255)
	assert.Equal(t, k, size)

	_, ok, _ := g.GetNode(ids[1])
	assert.False(t, ok, "least recently updated node should be evicted")
	for _, id := range []types.NodeID{ids[0], ids[2], newcomer} {
		_, ok, _ := g.GetNode(id)
		assert.True(t, ok)
	}

	// 其他桶不受影响
	other := idInBucket(t, local, 254)
	require.NoError(t, g.SetNode(other, addr(7)))
	size, _ = g.GetBucketSize(255)
	assert.Equal(t, k, size)
}

// TestSetNode_ConcurrentNeverExceedsK 并发写入后桶大小不超过 k
func TestSetNode_ConcurrentNeverExceedsK(t *testing.T) {
	const k = 4
	g, local := newGraph(t, k)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		id := idInBucket(t, local, 200)
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			assert.NoError(t, g.SetNode(id, addr(port)))
		}(uint16(i + 1))
	}
	wg.Wait()

	size, err := g.GetBucketSize(200)
	require.NoError(t, err)
	assert.Equal(t, k, size)
}

// TestGetBuckets_Ordered 桶按索引升序
func TestGetBuckets_Ordered(t *testing.T) {
	g, local := newGraph(t, 20)
	for _, idx := range []int{200, 3, 77, 3} {
		require.NoError(t, g.SetNode(idInBucket(t, local, idx), addr(1)))
	}

	buckets, err := g.GetBuckets()
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, 3, buckets[0].Index)
	assert.Equal(t, 2, buckets[0].Len())
	assert.Equal(t, 77, buckets[1].Index)
	assert.Equal(t, 200, buckets[2].Index)

	count, err := g.GetBucketCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, b := range buckets {
		for _, n := range b.Nodes {
			idx, err := types.BucketIndex(local, n.ID)
			require.NoError(t, err)
			assert.Equal(t, b.Index, idx)
		}
	}
}

// TestGetBucket_Sort 桶内排序选项
func TestGetBucket_Sort(t *testing.T) {
	g, local := newGraph(t, 20)
	var ids []types.NodeID
	for i := 0; i < 5; i++ {
		id := idInBucket(t, local, 150)
		ids = append(ids, id)
		require.NoError(t, g.SetNode(id, addr(uint16(i+1))))
	}

	b, ok, err := g.GetBucket(150, SortByLastUpdated, Desc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, b.Nodes, 5)
	assert.Equal(t, ids[4], b.Nodes[0].ID)
	assert.Equal(t, ids[0], b.Nodes[4].ID)

	b, _, _ = g.GetBucket(150, SortByDistance, Asc)
	for i := 1; i < len(b.Nodes); i++ {
		assert.Negative(t, types.CompareDistance(local, b.Nodes[i-1].ID, b.Nodes[i].ID))
	}

	b, _, _ = g.GetBucket(150, SortByNodeID, Asc)
	for i := 1; i < len(b.Nodes); i++ {
		assert.Negative(t, b.Nodes[i-1].ID.Compare(b.Nodes[i].ID))
	}

	_, ok, err = g.GetBucket(types.NodeIDBits, SortByNodeID, Asc)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestGetClosestNodes 按到目标的距离排序，包含目标自身
func TestGetClosestNodes(t *testing.T) {
	g, _ := newGraph(t, 64)

	var all []types.NodeID
	for i := 0; i < 40; i++ {
		id := randomID(t)
		all = append(all, id)
		require.NoError(t, g.SetNode(id, addr(uint16(i+1))))
	}
	stored, err := g.Count()
	require.NoError(t, err)
	require.Equal(t, len(all), stored)

	target := all[7]
	closest, err := g.GetClosestNodes(target, 10)
	require.NoError(t, err)
	require.Len(t, closest, 10)

	assert.Equal(t, target, closest[0].ID)
	assert.Zero(t, closest[0].Distance.Sign())
	for i := 1; i < len(closest); i++ {
		assert.Equal(t, -1, closest[i-1].Distance.Cmp(closest[i].Distance))
	}

	// 默认 limit 为 k
	closest, err = g.GetClosestNodes(randomID(t), 0)
	require.NoError(t, err)
	assert.Len(t, closest, stored)
}

// TestRefreshBuckets 新本地标识下重新分桶
func TestRefreshBuckets(t *testing.T) {
	g, local := newGraph(t, 64)

	var ids []types.NodeID
	for i := 0; i < 30; i++ {
		id := randomID(t)
		ids = append(ids, id)
		require.NoError(t, g.SetNode(id, addr(uint16(i+1))))
	}
	before, _ := g.Count()

	newLocal := ids[0]
	require.NoError(t, g.RefreshBuckets(newLocal))
	assert.Equal(t, newLocal, g.LocalNodeID())

	// 新本地节点被移除
	_, ok, _ := g.GetNode(newLocal)
	assert.False(t, ok)

	buckets, err := g.GetBuckets()
	require.NoError(t, err)
	total := 0
	for _, b := range buckets {
		assert.LessOrEqual(t, b.Len(), 64)
		for _, n := range b.Nodes {
			idx, err := types.BucketIndex(newLocal, n.ID)
			require.NoError(t, err)
			assert.Equal(t, b.Index, idx)
		}
		total += b.Len()
	}
	// 桶容量足够时除新本地节点外无丢失
	assert.Equal(t, before-1, total)

	// 旧本地标识现在可以入表
	require.NoError(t, g.SetNode(local, addr(5)))
	_, ok, _ = g.GetNode(local)
	assert.True(t, ok)
}

// TestRefreshBuckets_KeepsNewest 多个旧桶合并到一个新桶时保留最新的 k 个
func TestRefreshBuckets_KeepsNewest(t *testing.T) {
	const k = 2
	g, local := newGraph(t, k)

	// 依次写入，a 最旧
	a := idInBucket(t, local, 10)
	b := idInBucket(t, local, 20)
	c := idInBucket(t, local, 30)
	for _, id := range []types.NodeID{a, b, c} {
		require.NoError(t, g.SetNode(id, addr(1)))
	}

	// 翻转最高位：旧桶 0..254 的节点在新标识下全部落入桶 255
	newLocal := types.IDInBucket(local, 255, nil)
	require.NoError(t, g.RefreshBuckets(newLocal))

	size, err := g.GetBucketSize(255)
	require.NoError(t, err)
	assert.Equal(t, k, size)

	_, ok, _ := g.GetNode(a)
	assert.False(t, ok, "oldest entry should be dropped")
	for _, id := range []types.NodeID{b, c} {
		_, ok, _ := g.GetNode(id)
		assert.True(t, ok)
	}
}

// TestNew_IdentityRotation 重新打开时本地标识变化触发重新分桶
func TestNew_IdentityRotation(t *testing.T) {
	store := newStore(t)
	local := randomID(t)

	g, err := New(store, local, 20)
	require.NoError(t, err)
	peer := randomID(t)
	next := randomID(t)
	require.NoError(t, g.SetNode(peer, addr(1)))
	require.NoError(t, g.SetNode(next, addr(2)))

	reopened, err := New(store, next, 20)
	require.NoError(t, err)
	assert.Equal(t, next, reopened.LocalNodeID())

	_, ok, _ := reopened.GetNode(next)
	assert.False(t, ok)
	got, ok, err := reopened.GetNode(peer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addr(1), got)
}

// TestResetBuckets 清空路由表
func TestResetBuckets(t *testing.T) {
	g, _ := newGraph(t, 20)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.SetNode(randomID(t), addr(1)))
	}
	require.NoError(t, g.ResetBuckets())
	n, err := g.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

// requireConsistent 每个节点位于其距离对应的桶，桶不超过 k，LRU 索引与桶条目一一对应
func requireConsistent(t *testing.T, g *Graph) {
	t.Helper()
	local := g.LocalNodeID()
	buckets, err := g.GetBuckets()
	require.NoError(t, err)
	total := 0
	for _, b := range buckets {
		require.LessOrEqual(t, b.Len(), g.BucketSize(), "bucket %d over capacity", b.Index)
		for _, n := range b.Nodes {
			idx, err := types.BucketIndex(local, n.ID)
			require.NoError(t, err)
			require.Equal(t, idx, b.Index, "node %s in wrong bucket", n.ID.ShortString())
		}
		total += b.Len()
	}

	indexed := 0
	require.NoError(t, g.store.View(func(txn *kv.Transaction) error {
		return txn.Scan(prefixIndex, false, func(_, _ []byte) bool {
			indexed++
			return true
		})
	}))
	assert.Equal(t, total, indexed)
}

// TestSetNode_ConcurrentWithRefresh 重新分桶与写入并发时条目仍落在正确的桶
func TestSetNode_ConcurrentWithRefresh(t *testing.T) {
	const (
		k       = 8
		rounds  = 10
		writers = 64
	)
	g, _ := newGraph(t, k)

	for round := 0; round < rounds; round++ {
		ids := make([]types.NodeID, writers)
		for i := range ids {
			ids[i] = randomID(t)
		}
		newLocal := randomID(t)

		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(id types.NodeID, port uint16) {
				defer wg.Done()
				assert.NoError(t, g.SetNode(id, addr(port)))
				if port%4 == 0 {
					assert.NoError(t, g.UnsetNode(id))
				}
			}(id, uint16(i+1))
		}
		require.NoError(t, g.RefreshBuckets(newLocal))
		wg.Wait()

		requireConsistent(t, g)
	}
}

// TestGetClosestNodes_NearBeforeFar 20 个近节点与 10 个远节点，取 20 个恰为近节点
func TestGetClosestNodes_NearBeforeFar(t *testing.T) {
	g, _ := newGraph(t, 64)
	target := randomID(t)

	near := make(map[types.NodeID]bool)
	for i := 0; i < 20; i++ {
		fill := randomID(t)
		// 与 target 的距离小于 2^40，远节点的距离不小于 2^200
		id := types.IDInBucket(target, 20+i, fill[:])
		near[id] = true
		require.NoError(t, g.SetNode(id, addr(uint16(i+1))))
	}
	for i := 0; i < 10; i++ {
		fill := randomID(t)
		id := types.IDInBucket(target, 200+i, fill[:])
		require.NoError(t, g.SetNode(id, addr(uint16(100+i))))
	}
	n, err := g.Count()
	require.NoError(t, err)
	require.Equal(t, 30, n)

	closest, err := g.GetClosestNodes(target, 20)
	require.NoError(t, err)
	require.Len(t, closest, 20)
	for _, c := range closest {
		assert.True(t, near[c.ID], "far node %s returned", c.ID.ShortString())
	}
}

// TestSetNode_SameAddressIdempotent 相同地址重复写入只刷新时间戳
func TestSetNode_SameAddressIdempotent(t *testing.T) {
	store := newStore(t)
	local := randomID(t)
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	g, err := New(store, local, 20, WithClock(clock))
	require.NoError(t, err)

	id := idInBucket(t, local, 128)
	require.NoError(t, g.SetNode(id, addr(7)))
	first, ok, err := g.GetBucket(128, SortByNodeID, Asc)
	require.NoError(t, err)
	require.True(t, ok)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	require.NoError(t, g.SetNode(id, addr(7)))

	second, ok, err := g.GetBucket(128, SortByNodeID, Asc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, second.Len())
	assert.Equal(t, addr(7), second.Nodes[0].Contact.Address)
	assert.True(t, second.Nodes[0].Contact.LastUpdated.After(first.Nodes[0].Contact.LastUpdated))

	n, err := g.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	requireConsistent(t, g)
}

// TestNew_RestoresLastTimestamp 时钟回拨后重新打开，新写入仍是最新
func TestNew_RestoresLastTimestamp(t *testing.T) {
	store := newStore(t)
	local := randomID(t)
	later := time.Unix(1700000000, 0)
	earlier := later.Add(-time.Hour)

	g, err := New(store, local, 20, WithClock(func() time.Time { return later }))
	require.NoError(t, err)
	old := idInBucket(t, local, 255)
	require.NoError(t, g.SetNode(old, addr(1)))

	reopened, err := New(store, local, 20, WithClock(func() time.Time { return earlier }))
	require.NoError(t, err)
	fresh := idInBucket(t, local, 255)
	require.NoError(t, reopened.SetNode(fresh, addr(2)))

	b, ok, err := reopened.GetBucket(255, SortByLastUpdated, Desc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, b.Len())
	assert.Equal(t, fresh, b.Nodes[0].ID)
	assert.True(t, b.Nodes[0].Contact.LastUpdated.After(later))
}

// TestGetBucketSize_OutOfRange 越界索引被拒绝
func TestGetBucketSize_OutOfRange(t *testing.T) {
	g, _ := newGraph(t, 20)
	for _, idx := range []int{-1, types.NodeIDBits, 1 << 16} {
		_, err := g.GetBucketSize(idx)
		assert.ErrorIs(t, err, ErrInvalidBucketIndex, idx)
	}
	size, err := g.GetBucketSize(0)
	require.NoError(t, err)
	assert.Zero(t, size)
}

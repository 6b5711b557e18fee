package nodegraph

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
	"github.com/dep2p/go-secretmesh/internal/core/storage/kv"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

var logger = log.Logger("core/nodegraph")

// StorePrefix 路由表在存储中的前缀
var StorePrefix = []byte("ng/")

// Option 路由表选项
type Option func(*Graph)

// WithClock 设置时钟，测试中使用
func WithClock(now func() time.Time) Option {
	return func(g *Graph) {
		g.now = now
	}
}

// Graph 持久化路由表
//
// 写操作由 writeMu 串行化，读操作使用只读事务快照，不加锁。
type Graph struct {
	store *kv.Store
	k     int
	now   func() time.Time

	writeMu sync.Mutex
	localMu sync.RWMutex
	localID types.NodeID

	// 最近分配的时间戳，保证 lastUpdated 严格递增
	lastTS int64
}

// New 打开路由表
//
// 若存储中记录的本地 NodeID 与 localID 不同，重新分桶。
func New(store *kv.Store, localID types.NodeID, k int, opts ...Option) (*Graph, error) {
	if k <= 0 {
		return nil, ErrInvalidBucketSize
	}
	g := &Graph{
		store:   store,
		k:       k,
		now:     time.Now,
		localID: localID,
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.loadLastTimestamp(); err != nil {
		return nil, err
	}

	stored, err := store.Get(keyLocalID)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		if err := store.Put(keyLocalID, localID[:]); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !bytes.Equal(stored, localID[:]):
		logger.Info("本地身份已变更，重新分桶", "localID", localID.ShortString())
		if err := g.RefreshBuckets(localID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// LocalNodeID 返回当前本地节点标识
func (g *Graph) LocalNodeID() types.NodeID {
	g.localMu.RLock()
	defer g.localMu.RUnlock()
	return g.localID
}

// BucketSize 返回 k
func (g *Graph) BucketSize() int {
	return g.k
}

// nextTimestamp 返回严格递增的 Unix 纳秒时间戳，调用方持有 writeMu
func (g *Graph) nextTimestamp() int64 {
	ts := g.now().UnixNano()
	if ts <= g.lastTS {
		ts = g.lastTS + 1
	}
	g.lastTS = ts
	return ts
}

// loadLastTimestamp 从 LRU 索引恢复已分配的最大时间戳
//
// 时钟回拨后重启，新分配的时间戳仍大于存储中已有的。
func (g *Graph) loadLastTimestamp() error {
	return g.store.View(func(txn *kv.Transaction) error {
		return txn.Scan(prefixIndex, false, func(key, _ []byte) bool {
			if ts, ok := parseIndexTimestamp(key); ok && ts > g.lastTS {
				g.lastTS = ts
			}
			return true
		})
	})
}

// ============================================================================
//                              写操作
// ============================================================================

// SetNode 插入或刷新节点
//
// 桶满且 id 为新节点时，先淘汰 lastUpdated 最旧的节点。
// 刷新已有节点不会淘汰任何节点。id 为本地节点时静默忽略。
func (g *Graph) SetNode(id types.NodeID, addr types.NodeAddress) error {
	// 桶索引必须在 writeMu 内计算，RefreshBuckets 可能同时更换本地标识
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	idx, err := types.BucketIndex(g.localID, id)
	if errors.Is(err, types.ErrSelfBucket) {
		// 本地节点不入表
		return nil
	}

	ts := g.nextTimestamp()
	return g.store.Update(func(txn *kv.Transaction) error {
		old, found, err := getContact(txn, idx, id)
		if err != nil {
			return err
		}
		if found {
			if err := txn.Delete(indexKey(idx, old.LastUpdated, id)); err != nil {
				return err
			}
		} else if err := g.evictIfFull(txn, idx); err != nil {
			return err
		}
		return putContact(txn, idx, id, persistedContact{
			Host:        addr.Host,
			Port:        addr.Port,
			LastUpdated: ts,
		})
	})
}

// evictIfFull 桶已满时删除 lastUpdated 最旧的节点
func (g *Graph) evictIfFull(txn *kv.Transaction, idx int) error {
	size, err := bucketSize(txn, idx)
	if err != nil {
		return err
	}
	for ; size >= g.k; size-- {
		var oldestKey []byte
		err := txn.Scan(indexPrefix(idx), false, func(key, _ []byte) bool {
			oldestKey = append([]byte{}, key...)
			return false
		})
		if err != nil {
			return err
		}
		if oldestKey == nil {
			return nil
		}
		victim, ok := parseIndexKey(oldestKey)
		if !ok {
			return fmt.Errorf("%w: index key %x", ErrCorruptEntry, oldestKey)
		}
		if err := txn.Delete(oldestKey); err != nil {
			return err
		}
		if err := txn.Delete(bucketKey(idx, victim)); err != nil {
			return err
		}
		logger.Debug("淘汰最旧节点", "bucket", idx, "nodeID", victim.ShortString())
	}
	return nil
}

// UnsetNode 删除节点；桶变空时桶随之消失
func (g *Graph) UnsetNode(id types.NodeID) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	idx, err := types.BucketIndex(g.localID, id)
	if errors.Is(err, types.ErrSelfBucket) {
		return nil
	}

	return g.store.Update(func(txn *kv.Transaction) error {
		old, found, err := getContact(txn, idx, id)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(indexKey(idx, old.LastUpdated, id)); err != nil {
			return err
		}
		return txn.Delete(bucketKey(idx, id))
	})
}

// ResetBuckets 清空路由表
func (g *Graph) ResetBuckets() error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	return g.store.Update(func(txn *kv.Transaction) error {
		if err := txn.DeletePrefix(prefixBucket); err != nil {
			return err
		}
		return txn.DeletePrefix(prefixIndex)
	})
}

// RefreshBuckets 以新的本地标识重新分桶
//
// 每个新桶保留 lastUpdated 最新的 k 个节点；等于 newLocalID 的节点被丢弃。
// 整个过程在一个事务中完成。
func (g *Graph) RefreshBuckets(newLocalID types.NodeID) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	var dropped int
	err := g.store.Update(func(txn *kv.Transaction) error {
		entries, err := scanEntries(txn, prefixBucket)
		if err != nil {
			return err
		}
		if err := txn.DeletePrefix(prefixBucket); err != nil {
			return err
		}
		if err := txn.DeletePrefix(prefixIndex); err != nil {
			return err
		}

		grouped := make(map[int][]storedEntry)
		for _, e := range entries {
			idx, err := types.BucketIndex(newLocalID, e.id)
			if err != nil {
				dropped++
				continue
			}
			grouped[idx] = append(grouped[idx], e)
		}
		for idx, group := range grouped {
			sort.Slice(group, func(i, j int) bool {
				return group[i].contact.LastUpdated > group[j].contact.LastUpdated
			})
			if len(group) > g.k {
				dropped += len(group) - g.k
				group = group[:g.k]
			}
			for _, e := range group {
				if err := putContact(txn, idx, e.id, e.contact); err != nil {
					return err
				}
			}
		}
		return txn.Set(keyLocalID, newLocalID[:])
	})
	if err != nil {
		return err
	}

	g.localMu.Lock()
	g.localID = newLocalID
	g.localMu.Unlock()

	logger.Info("路由表已重新分桶", "localID", newLocalID.ShortString(), "dropped", dropped)
	return nil
}

// ============================================================================
//                              读操作
// ============================================================================

// GetNode 查询节点地址
func (g *Graph) GetNode(id types.NodeID) (types.NodeAddress, bool, error) {
	idx, err := types.BucketIndex(g.LocalNodeID(), id)
	if errors.Is(err, types.ErrSelfBucket) {
		return types.NodeAddress{}, false, nil
	}
	var (
		contact persistedContact
		found   bool
	)
	err = g.store.View(func(txn *kv.Transaction) error {
		contact, found, err = getContact(txn, idx, id)
		return err
	})
	if err != nil || !found {
		return types.NodeAddress{}, false, err
	}
	return contact.contact().Address, true, nil
}

// GetBucket 返回指定索引的桶；桶为空或索引越界时 ok 为 false
func (g *Graph) GetBucket(index int, sortBy SortBy, order Order) (Bucket, bool, error) {
	if index < 0 || index >= types.NodeIDBits {
		return Bucket{}, false, nil
	}
	var entries []storedEntry
	err := g.store.View(func(txn *kv.Transaction) error {
		var err error
		entries, err = scanEntries(txn, bucketPrefix(index))
		return err
	})
	if err != nil || len(entries) == 0 {
		return Bucket{}, false, err
	}
	b := Bucket{Index: index, Nodes: toNodeEntries(entries)}
	g.sortBucket(b.Nodes, sortBy, order)
	return b, true, nil
}

// GetBuckets 返回所有非空桶，按索引升序，桶内按节点标识升序
func (g *Graph) GetBuckets() ([]Bucket, error) {
	var entries []storedEntry
	err := g.store.View(func(txn *kv.Transaction) error {
		var err error
		entries, err = scanEntries(txn, prefixBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	for _, e := range entries {
		if len(buckets) == 0 || buckets[len(buckets)-1].Index != e.idx {
			buckets = append(buckets, Bucket{Index: e.idx})
		}
		last := &buckets[len(buckets)-1]
		last.Nodes = append(last.Nodes, e.nodeEntry())
	}
	return buckets, nil
}

// GetBucketSize 返回指定桶的节点数，索引越界返回 ErrInvalidBucketIndex
func (g *Graph) GetBucketSize(index int) (int, error) {
	if index < 0 || index >= types.NodeIDBits {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBucketIndex, index)
	}
	var n int
	err := g.store.View(func(txn *kv.Transaction) error {
		var err error
		n, err = bucketSize(txn, index)
		return err
	})
	return n, err
}

// GetBucketCount 返回非空桶的数量
func (g *Graph) GetBucketCount() (int, error) {
	buckets, err := g.GetBuckets()
	return len(buckets), err
}

// Count 返回路由表中的节点总数
func (g *Graph) Count() (int, error) {
	var n int
	err := g.store.View(func(txn *kv.Transaction) error {
		return txn.Scan(prefixBucket, false, func(_, _ []byte) bool {
			n++
			return true
		})
	})
	return n, err
}

// GetClosestNodes 返回距离 target 最近的至多 limit 个节点
//
// 按距离升序，距离相同按标识升序。若 target 本身在表中，它排在首位。
// limit <= 0 时使用 k。
func (g *Graph) GetClosestNodes(target types.NodeID, limit int) ([]ClosestNode, error) {
	if limit <= 0 {
		limit = g.k
	}
	var entries []storedEntry
	err := g.store.View(func(txn *kv.Transaction) error {
		var err error
		entries, err = scanEntries(txn, prefixBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if c := types.CompareDistance(target, entries[i].id, entries[j].id); c != 0 {
			return c < 0
		}
		return entries[i].id.Compare(entries[j].id) < 0
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	result := make([]ClosestNode, 0, len(entries))
	for _, e := range entries {
		result = append(result, ClosestNode{
			ID:       e.id,
			Address:  types.NodeAddress{Host: e.contact.Host, Port: e.contact.Port},
			Distance: types.Distance(target, e.id),
		})
	}
	return result, nil
}

func (g *Graph) sortBucket(nodes []NodeEntry, sortBy SortBy, order Order) {
	local := g.LocalNodeID()
	less := func(i, j int) bool {
		switch sortBy {
		case SortByDistance:
			return types.CompareDistance(local, nodes[i].ID, nodes[j].ID) < 0
		case SortByLastUpdated:
			return nodes[i].Contact.LastUpdated.Before(nodes[j].Contact.LastUpdated)
		default:
			return nodes[i].ID.Compare(nodes[j].ID) < 0
		}
	}
	if order == Desc {
		sort.SliceStable(nodes, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(nodes, less)
}

// ============================================================================
//                              存储辅助
// ============================================================================

type storedEntry struct {
	idx     int
	id      types.NodeID
	contact persistedContact
}

func (e storedEntry) nodeEntry() NodeEntry {
	return NodeEntry{ID: e.id, Contact: e.contact.contact()}
}

func toNodeEntries(entries []storedEntry) []NodeEntry {
	nodes := make([]NodeEntry, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, e.nodeEntry())
	}
	return nodes
}

func getContact(txn *kv.Transaction, idx int, id types.NodeID) (persistedContact, bool, error) {
	data, err := txn.Get(bucketKey(idx, id))
	if errors.Is(err, engine.ErrNotFound) {
		return persistedContact{}, false, nil
	}
	if err != nil {
		return persistedContact{}, false, err
	}
	var c persistedContact
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return persistedContact{}, false, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return c, true, nil
}

func putContact(txn *kv.Transaction, idx int, id types.NodeID, c persistedContact) error {
	data, err := msgpack.Marshal(&c)
	if err != nil {
		return err
	}
	if err := txn.Set(bucketKey(idx, id), data); err != nil {
		return err
	}
	return txn.Set(indexKey(idx, c.LastUpdated, id), nil)
}

func bucketSize(txn *kv.Transaction, idx int) (int, error) {
	var n int
	err := txn.Scan(bucketPrefix(idx), false, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func scanEntries(txn *kv.Transaction, prefix []byte) ([]storedEntry, error) {
	var (
		entries []storedEntry
		decErr  error
	)
	err := txn.Scan(prefix, false, func(key, value []byte) bool {
		idx, id, ok := parseBucketKey(key)
		if !ok {
			decErr = fmt.Errorf("%w: bucket key %x", ErrCorruptEntry, key)
			return false
		}
		var c persistedContact
		if err := msgpack.Unmarshal(value, &c); err != nil {
			decErr = fmt.Errorf("%w: %v", ErrCorruptEntry, err)
			return false
		}
		entries = append(entries, storedEntry{idx: idx, id: id, contact: c})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, decErr
}

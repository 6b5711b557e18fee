package nodegraph

import (
	"math/big"
	"time"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// NodeEntry 桶中的一个节点
type NodeEntry struct {
	ID      types.NodeID
	Contact types.NodeContact
}

// Bucket 一个非空 k-桶的快照
type Bucket struct {
	// Index 桶索引，floor(log2(distance))
	Index int

	// Nodes 桶内节点，顺序由查询参数决定
	Nodes []NodeEntry
}

// Len 返回桶内节点数
func (b Bucket) Len() int {
	return len(b.Nodes)
}

// ClosestNode GetClosestNodes 的结果项
type ClosestNode struct {
	ID       types.NodeID
	Address  types.NodeAddress
	Distance *big.Int
}

// SortBy 桶内排序字段
type SortBy int

const (
	// SortByNodeID 按节点标识排序（存储顺序）
	SortByNodeID SortBy = iota
	// SortByDistance 按到本地节点的距离排序
	SortByDistance
	// SortByLastUpdated 按最后更新时间排序
	SortByLastUpdated
)

// Order 排序方向
type Order int

const (
	// Asc 升序
	Asc Order = iota
	// Desc 降序
	Desc
)

// persistedContact 持久化的联系信息
type persistedContact struct {
	Host        string `msgpack:"h"`
	Port        uint16 `msgpack:"p"`
	LastUpdated int64  `msgpack:"t"` // Unix 纳秒
}

func (p persistedContact) contact() types.NodeContact {
	return types.NodeContact{
		Address:     types.NodeAddress{Host: p.Host, Port: p.Port},
		LastUpdated: time.Unix(0, p.LastUpdated),
	}
}

package nodegraph

import (
	"encoding/binary"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

var (
	prefixBucket = []byte("b/")
	prefixIndex  = []byte("l/")
	keyLocalID   = []byte("m/local")
)

const (
	idxLen = 2
	tsLen  = 8
)

func appendIdx(b []byte, idx int) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(idx))
	return append(b, '/')
}

// bucketPrefix b/<idx>/
func bucketPrefix(idx int) []byte {
	return appendIdx(append([]byte{}, prefixBucket...), idx)
}

// bucketKey b/<idx>/<id>
func bucketKey(idx int, id types.NodeID) []byte {
	return append(bucketPrefix(idx), id[:]...)
}

// indexPrefix l/<idx>/
func indexPrefix(idx int) []byte {
	return appendIdx(append([]byte{}, prefixIndex...), idx)
}

// indexKey l/<idx>/<ts>/<id>
func indexKey(idx int, ts int64, id types.NodeID) []byte {
	b := indexPrefix(idx)
	b = binary.BigEndian.AppendUint64(b, uint64(ts))
	b = append(b, '/')
	return append(b, id[:]...)
}

// parseBucketKey 从 b/<idx>/<id> 解析桶索引和节点标识
func parseBucketKey(key []byte) (int, types.NodeID, bool) {
	want := len(prefixBucket) + idxLen + 1 + types.NodeIDSize
	if len(key) != want {
		return 0, types.EmptyNodeID, false
	}
	off := len(prefixBucket)
	idx := int(binary.BigEndian.Uint16(key[off : off+idxLen]))
	id, err := types.NodeIDFromBytes(key[off+idxLen+1:])
	if err != nil {
		return 0, types.EmptyNodeID, false
	}
	return idx, id, true
}

// parseIndexKey 从 l/<idx>/<ts>/<id> 解析节点标识
func parseIndexKey(key []byte) (types.NodeID, bool) {
	want := len(prefixIndex) + idxLen + 1 + tsLen + 1 + types.NodeIDSize
	if len(key) != want {
		return types.EmptyNodeID, false
	}
	id, err := types.NodeIDFromBytes(key[want-types.NodeIDSize:])
	if err != nil {
		return types.EmptyNodeID, false
	}
	return id, true
}

// parseIndexTimestamp 从 l/<idx>/<ts>/<id> 解析时间戳
func parseIndexTimestamp(key []byte) (int64, bool) {
	want := len(prefixIndex) + idxLen + 1 + tsLen + 1 + types.NodeIDSize
	if len(key) != want {
		return 0, false
	}
	off := len(prefixIndex) + idxLen + 1
	return int64(binary.BigEndian.Uint64(key[off : off+tsLen])), true
}

package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDistance_Symmetric 距离对称且自距离为 0
func TestDistance_Symmetric(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, b := randomNodeID(t), randomNodeID(t)
		assert.Equal(t, 0, Distance(a, b).Cmp(Distance(b, a)))
		assert.Equal(t, 0, Distance(a, a).Sign())
	}
}

// TestBucketIndex 测试桶索引为 floor(log2(distance))
func TestBucketIndex(t *testing.T) {
	var local NodeID

	var one NodeID
	one[NodeIDSize-1] = 1
	idx, err := BucketIndex(local, one)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	var top NodeID
	top[0] = 0x80
	idx, err = BucketIndex(local, top)
	require.NoError(t, err)
	assert.Equal(t, NodeIDBits-1, idx)

	_, err = BucketIndex(local, local)
	assert.ErrorIs(t, err, ErrSelfBucket)

	// 与 big.Int 的 BitLen 对照
	for i := 0; i < 50; i++ {
		a, b := randomNodeID(t), randomNodeID(t)
		if a == b {
			continue
		}
		idx, err := BucketIndex(a, b)
		require.NoError(t, err)
		assert.Equal(t, Distance(a, b).BitLen()-1, idx)
	}
}

// TestIDInBucket 构造的 ID 落在指定桶内
func TestIDInBucket(t *testing.T) {
	local := randomNodeID(t)
	fill := randomNodeID(t)
	for _, index := range []int{0, 1, 7, 8, 9, 100, 254, 255} {
		id := IDInBucket(local, index, fill[:])
		got, err := BucketIndex(local, id)
		require.NoError(t, err)
		assert.Equal(t, index, got)
	}
}

// TestCompareDistance 与大整数比较结果一致
func TestCompareDistance(t *testing.T) {
	target := randomNodeID(t)
	for i := 0; i < 50; i++ {
		a, b := randomNodeID(t), randomNodeID(t)
		want := Distance(target, a).Cmp(Distance(target, b))
		assert.Equal(t, want, CompareDistance(target, a, b))
	}
	assert.Equal(t, 0, CompareDistance(target, target, target))
	assert.Equal(t, 0, Distance(target, target).Cmp(big.NewInt(0)))
}

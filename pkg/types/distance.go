package types

import (
	"bytes"
	"errors"
	"math/big"
	"math/bits"
)

// ErrSelfBucket 距离为 0（自身）没有桶
var ErrSelfBucket = errors.New("distance 0 has no bucket")

// XOR 返回两个 NodeID 的按位异或
func XOR(a, b NodeID) NodeID {
	var d NodeID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Distance 计算 Kademlia 距离
//
// 距离定义为 a XOR b，按无符号大整数解释。对称：Distance(a,b) == Distance(b,a)，
// 且 Distance(a,a) == 0。
func Distance(a, b NodeID) *big.Int {
	d := XOR(a, b)
	return new(big.Int).SetBytes(d[:])
}

// CompareDistance 比较 a、b 到 target 的距离
//
// 返回 -1 表示 a 更近，1 表示 b 更近，0 表示距离相等（仅当 a == b）。
// 逐字节比较 XOR 结果，不分配大整数。
func CompareDistance(target, a, b NodeID) int {
	da := XOR(target, a)
	db := XOR(target, b)
	return bytes.Compare(da[:], db[:])
}

// BucketIndex 计算 id 相对 local 的桶索引
//
// 桶索引为 floor(log2(distance))，范围 [0, NodeIDBits-1]。
// 距离为 0 时返回 ErrSelfBucket。
func BucketIndex(local, id NodeID) (int, error) {
	d := XOR(local, id)
	for i, b := range d {
		if b != 0 {
			// 最高有效位所在位置
			byteFromRight := NodeIDSize - 1 - i
			return byteFromRight*8 + (7 - bits.LeadingZeros8(b)), nil
		}
	}
	return 0, ErrSelfBucket
}

// IDInBucket 生成一个相对 local 落在指定桶内的 NodeID
//
// 翻转第 index 位，并以 fill 字节填充更低位，便于测试和桶刷新构造目标。
func IDInBucket(local NodeID, index int, fill []byte) NodeID {
	id := local
	byteIdx := NodeIDSize - 1 - index/8
	bit := uint(index % 8)
	id[byteIdx] ^= 1 << bit
	// 低于 index 的位用 fill 扰动，保证仍在同一桶
	mask := byte(1<<bit) - 1
	if len(fill) > 0 {
		id[byteIdx] = (id[byteIdx] &^ mask) | (fill[0] & mask)
	}
	for i := byteIdx + 1; i < NodeIDSize; i++ {
		j := i - byteIdx
		if j < len(fill) {
			id[i] = fill[j]
		}
	}
	return id
}

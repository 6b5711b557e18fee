package nodegraph

import "errors"

var (
	// ErrInvalidBucketSize 桶容量必须为正
	ErrInvalidBucketSize = errors.New("nodegraph: bucket size must be positive")

	// ErrInvalidBucketIndex 桶索引超出 [0, NodeIDBits)
	ErrInvalidBucketIndex = errors.New("nodegraph: bucket index out of range")

	// ErrCorruptEntry 存储中的联系信息无法解码
	ErrCorruptEntry = errors.New("nodegraph: corrupt entry")
)

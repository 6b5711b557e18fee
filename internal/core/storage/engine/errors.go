package engine

import "errors"

// 键与引擎状态
var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")

	// ErrEmptyKey 键为空
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")

	// ErrInvalidConfig 引擎配置无效
	ErrInvalidConfig = errors.New("storage: invalid configuration")
)

// 事务，路由表的每次写操作都是一个事务
var (
	// ErrReadOnly 在只读事务中写入
	ErrReadOnly = errors.New("storage: read-only transaction")

	// ErrTransactionConflict 并发事务写冲突，调用方可重试
	ErrTransactionConflict = errors.New("storage: transaction conflict")

	// ErrTransactionTooLarge 单个事务超过引擎上限
	ErrTransactionTooLarge = errors.New("storage: transaction too large")

	// ErrTransactionDiscarded 事务已提交或丢弃
	ErrTransactionDiscarded = errors.New("storage: transaction discarded")
)

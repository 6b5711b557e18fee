package engine

// Engine 存储引擎接口
type Engine interface {
	// Get 获取值，键不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 设置键值对
	Put(key, value []byte) error

	// Delete 删除键
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewTransaction 创建事务，调用者负责 Commit 或 Discard
	NewTransaction(writable bool) Transaction

	// Start 启动后台任务（GC）
	Start() error

	// Close 关闭引擎
	Close() error
}

// Transaction 事务接口
//
// 使用模式:
//
//	txn := eng.NewTransaction(true)
//	defer txn.Discard()
//
//	if err := txn.Set(key, value); err != nil {
//	    return err
//	}
//	return txn.Commit()
type Transaction interface {
	// Get 在事务中读取值，能看到本事务未提交的写入
	Get(key []byte) ([]byte, error)

	// Set 设置值，仅对读写事务有效
	Set(key, value []byte) error

	// Delete 删除键，仅对读写事务有效
	Delete(key []byte) error

	// Iterate 按键序遍历具有 prefix 的键值对，fn 返回 false 时停止
	//
	// key 和 value 仅在回调期间有效。遍历期间不得修改事务。
	Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error

	// Commit 提交事务
	Commit() error

	// Discard 丢弃事务，多次调用安全
	Discard()
}

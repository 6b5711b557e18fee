package badger

import (
	"bytes"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
)

// 反向迭代时前缀之后键的最大长度
const maxKeySuffix = 256

// Transaction BadgerDB 事务实现
type Transaction struct {
	txn       *badger.Txn
	writable  bool
	committed atomic.Bool
	discarded atomic.Bool
}

var _ engine.Transaction = (*Transaction)(nil)

// Get 在事务中读取值
func (t *Transaction) Get(key []byte) ([]byte, error) {
	if t.discarded.Load() {
		return nil, engine.ErrTransactionDiscarded
	}
	if len(key) == 0 {
		return nil, engine.ErrEmptyKey
	}
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, convertError(err)
	}
	return item.ValueCopy(nil)
}

// Set 在事务中设置值
func (t *Transaction) Set(key, value []byte) error {
	if err := t.checkWritable(key); err != nil {
		return err
	}
	return convertError(t.txn.Set(key, value))
}

// Delete 在事务中删除键
func (t *Transaction) Delete(key []byte) error {
	if err := t.checkWritable(key); err != nil {
		return err
	}
	return convertError(t.txn.Delete(key))
}

func (t *Transaction) checkWritable(key []byte) error {
	if t.discarded.Load() {
		return engine.ErrTransactionDiscarded
	}
	if !t.writable {
		return engine.ErrReadOnly
	}
	if len(key) == 0 {
		return engine.ErrEmptyKey
	}
	return nil
}

// Iterate 遍历前缀下的键值对
//
// 读写事务同一时刻只允许一个迭代器，回调返回前迭代器保持打开。
func (t *Transaction) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	if t.discarded.Load() {
		return engine.ErrTransactionDiscarded
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := t.txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		// 反向迭代需要定位到前缀范围的末尾
		seek = append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xff}, maxKeySuffix)...)
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return convertError(err)
		}
		if !fn(item.Key(), value) {
			break
		}
	}
	return nil
}

// Commit 提交事务
func (t *Transaction) Commit() error {
	if t.discarded.Load() {
		return engine.ErrTransactionDiscarded
	}
	if t.committed.Swap(true) {
		return nil
	}
	return convertError(t.txn.Commit())
}

// Discard 丢弃事务
func (t *Transaction) Discard() {
	if t.discarded.Swap(true) {
		return
	}
	if t.committed.Load() {
		return
	}
	t.txn.Discard()
}

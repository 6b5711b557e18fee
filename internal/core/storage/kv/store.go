package kv

import (
	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.Engine
	prefix []byte
}

// New 创建新的 KVStore
func New(eng engine.Engine, prefix []byte) *Store {
	return &Store{
		engine: eng,
		prefix: append([]byte{}, prefix...),
	}
}

func (s *Store) prefixKey(key []byte) []byte {
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

func (s *Store) stripPrefix(key []byte) []byte {
	if len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// Update 在读写事务中执行 fn，fn 返回 nil 时提交
func (s *Store) Update(fn func(txn *Transaction) error) error {
	txn := s.NewTransaction(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View 在只读事务中执行 fn
func (s *Store) View(fn func(txn *Transaction) error) error {
	txn := s.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

// Prefix 返回当前 Store 的前缀
func (s *Store) Prefix() []byte {
	return s.prefix
}

// SubStore 在当前前缀基础上添加子前缀
func (s *Store) SubStore(subPrefix []byte) *Store {
	return New(s.engine, s.prefixKey(subPrefix))
}

// ============================================================================
//                              事务
// ============================================================================

// Transaction 带前缀的事务
type Transaction struct {
	store *Store
	txn   engine.Transaction
}

// NewTransaction 创建新的事务
func (s *Store) NewTransaction(writable bool) *Transaction {
	return &Transaction{
		store: s,
		txn:   s.engine.NewTransaction(writable),
	}
}

// Get 在事务中获取值
func (t *Transaction) Get(key []byte) ([]byte, error) {
	return t.txn.Get(t.store.prefixKey(key))
}

// Set 在事务中设置值
func (t *Transaction) Set(key, value []byte) error {
	return t.txn.Set(t.store.prefixKey(key), value)
}

// Delete 在事务中删除键
func (t *Transaction) Delete(key []byte) error {
	return t.txn.Delete(t.store.prefixKey(key))
}

// Scan 按键序遍历 subPrefix 下的键值对
//
// 回调收到的 key 已去除 Store 的前缀，但保留 subPrefix。
func (t *Transaction) Scan(subPrefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	return t.txn.Iterate(t.store.prefixKey(subPrefix), reverse, func(key, value []byte) bool {
		return fn(t.store.stripPrefix(key), value)
	})
}

// Keys 返回 subPrefix 下所有键的副本
func (t *Transaction) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := t.Scan(subPrefix, false, func(key, _ []byte) bool {
		keys = append(keys, append([]byte{}, key...))
		return true
	})
	return keys, err
}

// DeletePrefix 删除 subPrefix 下的所有键
func (t *Transaction) DeletePrefix(subPrefix []byte) error {
	keys, err := t.Keys(subPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Commit 提交事务
func (t *Transaction) Commit() error {
	return t.txn.Commit()
}

// Discard 丢弃事务
func (t *Transaction) Discard() {
	t.txn.Discard()
}

// Package kv 提供带前缀隔离的 KV 存储抽象层
//
// 每个组件使用不同的前缀隔离数据，事务内的所有键同样自动加前缀：
//
//	graph := kv.New(eng, []byte("ng/"))
//	err := graph.Update(func(txn *kv.Transaction) error {
//	    return txn.Set([]byte("m/local"), id[:]) // 实际键: ng/m/local
//	})
package kv

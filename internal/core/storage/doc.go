// Package storage 提供统一的持久化存储服务
//
// 基于 BadgerDB，为路由表等组件提供带事务的键值存储。
//
//	┌──────────────────────────────┐
//	│   nodegraph (ng/ 前缀)        │
//	└──────────────────────────────┘
//	               │
//	┌──────────────────────────────┐
//	│   kv.Store  前缀隔离 + 事务    │
//	└──────────────────────────────┘
//	               │
//	┌──────────────────────────────┐
//	│   engine/badger              │
//	└──────────────────────────────┘
//
// # 键空间设计
//
//	前缀     | 模块       | 说明
//	---------|------------|------------------
//	ng/b/    | NodeGraph  | 桶内节点联系信息
//	ng/l/    | NodeGraph  | lastUpdated 索引
//	ng/m/    | NodeGraph  | 元数据（本地 NodeID）
package storage

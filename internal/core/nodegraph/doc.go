// Package nodegraph 实现持久化的 Kademlia 路由表
//
// 路由表以 256 位 XOR 距离组织 k-桶，每个桶至多 k 个节点。
// 桶满时插入新节点会先淘汰 lastUpdated 最旧的节点；刷新已有
// 节点从不淘汰。所有变更在一个 BadgerDB 写事务内完成，崩溃
// 不会留下超容量的桶或孤立的索引项。
//
// # 键空间（前缀 ng/）
//
//	b/<idx:2>/<id:32>           -> 联系信息（msgpack）
//	l/<idx:2>/<ts:8>/<id:32>    -> 空值，按 lastUpdated 排序的索引
//	m/local                     -> 上次使用的本地 NodeID
//
// 启动时若本地 NodeID 与上次不同（身份轮换），自动执行 RefreshBuckets。
package nodegraph

// Package types 定义 secretmesh 的基础类型
//
// # 核心类型
//
//   - NodeID: 256 位节点标识，由 Ed25519 公钥 SHA256 派生
//   - Distance / BucketIndex: Kademlia XOR 距离和桶索引
//   - NodeAddress / NodeContact / NodeData: 节点地址与路由表联系信息
//
// 本包不依赖任何其他内部包。
package types

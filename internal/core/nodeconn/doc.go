// Package nodeconn 实现节点连接管理
//
// Manager 回答两个问题："节点 X 在哪里"和"给我一条到 X 的可用会话"。
//
// # 查找
//
// FindNode 先查本地路由表，未命中时进行迭代查找：维护到目标最近的
// k 个候选，每轮并发询问 alpha 个未询问过的候选各自的最近节点，合并
// 结果后重复，直到找到目标、一轮结束没有新节点进入候选列表或者候选
// 耗尽。查找过程中获知的每个 (id, address) 都会写入路由表。
//
// # 会话
//
// AcquireConnection 返回带引用计数的 NodeConnection。会话由代理的正向
// 连接、本地 CONNECT 隧道和其上的 yamux RPC 客户端组成。最后一个引用
// 释放后会话保留 conn_timeout_time，期间可被复用；Stop 会强制销毁所有
// 会话。
//
// # 打洞中继
//
// 连接非种子节点时，Manager 同时请求每个种子节点中继一条签名的打洞
// 消息。种子节点持有目标的反向连接时，在该连接上打开一个流把消息交给
// 目标，目标随即向来源发起反向打洞。中继只转发这一条控制消息，之后的
// 流量不经过中继。
package nodeconn

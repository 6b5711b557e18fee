// Package muxer 在单条字节流上复用多个逻辑流
//
// 代理隧道（CONNECT 后的 TCP 连接）上建立 yamux 会话，RPC 的每次调用
// 使用会话中的一个独立流。客户端在隧道发起方，服务端在被转发到的
// 本地 RPC 服务上。
package muxer

// Package rpc 提供节点间的请求/响应调用
//
// 每次调用占用 yamux 会话中的一个流：客户端写入一个 msgpack 编码的
// request，服务端回写一个 response 后关闭流。远端错误携带稳定的错误
// 码，客户端把已登记的错误码还原为本地的哨兵错误，调用方可以直接
// 使用 errors.Is 判断。
package rpc

// Package quic 封装代理使用的 QUIC 传输
//
// 一个 Transport 持有单个 UDP 套接字：同一端口上既监听入站 QUIC 连接，
// 又发起出站拨号，还收发打洞用的非 QUIC 数据包。打洞必须使用与
// 监听相同的本地端口，否则 NAT 会分配新的外部映射。
//
// Stream 把 *quic.Stream 适配为 net.Conn，供代理在 TCP 与 QUIC 之间拼接。
package quic

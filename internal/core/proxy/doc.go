// Package proxy 实现穿透 NAT 的双向代理
//
// 正向（forward）一半代表本地调用方发起出站连接，反向（reverse）一半
// 接受远端节点的入站连接并转发到本地服务。两者共用一个 UDP 套接字、
// 同一套连接状态机和同一套证书认证。
//
// # 连接状态机
//
//	Composing ──► Established ──► Ending ──► Closed
//	    │              │            │
//	    └──────────────┴────────────┴──► Errored
//
// Composing 阶段周期性发送 ping 打洞，收到对端的 ping/pong 后进行
// TLS 1.3 握手（QUIC）。Established 阶段按 ConnKeepAliveIntervalTime
// 发送 ping，ConnKeepAliveTimeoutTime 内无任何 ping/pong 即作为正常
// 超时关闭（不是错误）。Ending 阶段最多等待 ConnEndTime 让进行中的
// 流结束。
//
// # 本地入口
//
// 正向代理在 ForwardHost:ForwardPort 上提供 HTTP CONNECT 入口：
//
//	CONNECT 1.2.3.4:1314?nodeId=<base58> HTTP/1.1
//	Proxy-Authorization: Basic <base64(token)>
//
// 响应码：200 成功，400 目标无效，407 令牌错误，502 连接失败，
// 504 连接超时，526 节点身份不符。
//
// # 连接表
//
// 正向连接以远端 (host, port) 为键，反向连接以远端出口 (host, port)
// 为键，同一键只有一个连接，重复打开返回已有连接。调用方通过
// Acquire* 获取引用计数的 ConnHandle，Stop 会让所有句柄失效。
package proxy

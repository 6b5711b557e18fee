// Package tls 提供节点证书的生成与证书链验证
//
// 节点证书使用 Ed25519 密钥，NodeID 由证书公钥派生（SHA256）。
// 证书链中的每张证书都会派生一个候选 NodeID，转发方只要任一
// 候选与期望集合匹配即通过认证；接收方接受任何有效链并报告
// 叶子证书派生出的 NodeID。
//
// TLS 握手本身使用 InsecureSkipVerify 跳过 PKI 验证，握手完成后
// 由调用方对 PeerCertificates 调用 VerifyServerChain / VerifyClientChain。
package tls

// Package identity 管理本节点的 Ed25519 身份
//
// 负责：
//   - 密钥对生成、PEM 持久化（原子写入，权限 0600）
//   - NodeID 派生（SHA256(公钥)）
//   - 数据签名与验证
//   - 基于节点私钥的自签名 TLS 证书
//
// # Fx 模块
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    identity.Module(),
//	    fx.Invoke(func(id *identity.Identity) {
//	        fmt.Println(id.NodeID())
//	    }),
//	)
package identity

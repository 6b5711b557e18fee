package proxy

import "errors"

var (
	// ErrProxyNotRunning 代理未启动或已停止
	ErrProxyNotRunning = errors.New("proxy is not running")

	// ErrProxyRunning 代理已在运行
	ErrProxyRunning = errors.New("proxy is already running")

	// ErrConnectionNotRunning 连接不处于 Established 状态
	ErrConnectionNotRunning = errors.New("connection is not running")

	// ErrConnectionNotFound 连接表中没有对应连接
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionStart 打洞或握手期间的传输错误
	ErrConnectionStart = errors.New("connection start failed")

	// ErrConnectionStartTimeout 在 ConnConnectTime 内未完成打洞和握手
	ErrConnectionStartTimeout = errors.New("connection start timed out")

	// ErrConnectionVerify 对端证书链验证失败
	ErrConnectionVerify = errors.New("connection verification failed")

	// ErrInvalidTarget 无效的目标地址或节点 ID
	ErrInvalidTarget = errors.New("invalid target")

	// ErrHandleReleased 句柄已释放
	ErrHandleReleased = errors.New("connection handle released")
)

// QUIC 应用层关闭码
const (
	codeNormal           = 0x0
	codeKeepAliveTimeout = 0x1
	codeVerifyFailed     = 0x2
	codeShutdown         = 0x3
	codeReplaced         = 0x4
)

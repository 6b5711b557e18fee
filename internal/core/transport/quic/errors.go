package quic

import "errors"

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")

	// ErrNotListening 传输尚未监听
	ErrNotListening = errors.New("transport not listening")
)

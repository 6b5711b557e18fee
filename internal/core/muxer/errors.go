package muxer

import (
	"errors"
	"fmt"

	"github.com/hashicorp/yamux"
)

var (
	// ErrConnClosed 会话已关闭或对端不再接受新流
	ErrConnClosed = errors.New("muxer: session closed")

	// ErrStreamReset 对端重置了流
	ErrStreamReset = errors.New("muxer: stream reset")
)

// yamuxErrors yamux 错误到本包错误的映射
var yamuxErrors = []struct {
	from error
	to   error
}{
	{yamux.ErrSessionShutdown, ErrConnClosed},
	{yamux.ErrRemoteGoAway, ErrConnClosed},
	{yamux.ErrConnectionReset, ErrStreamReset},
}

// parseError 把 yamux 错误归类为本包错误，原始错误仍可由 errors.Is 匹配
//
// io.EOF 等其他错误原样返回。
func parseError(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range yamuxErrors {
		if errors.Is(err, m.from) {
			return fmt.Errorf("%w: %w", m.to, err)
		}
	}
	return err
}

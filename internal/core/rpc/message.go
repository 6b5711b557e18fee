package rpc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// request 调用请求
type request struct {
	Method string             `msgpack:"m"`
	Params msgpack.RawMessage `msgpack:"p"`
}

// response 调用响应，Error 非空时 Result 无意义
type response struct {
	Result msgpack.RawMessage `msgpack:"r,omitempty"`
	Error  *RemoteError       `msgpack:"e,omitempty"`
}

// ============================================================================
//                              错误码
// ============================================================================

// 内置错误码
const (
	CodeUnknown        = "unknown"
	CodeMethodNotFound = "method_not_found"
	CodeBadRequest     = "bad_request"
)

var (
	// ErrMethodNotFound 远端没有注册该方法
	ErrMethodNotFound = errors.New("rpc: method not found")

	// ErrBadRequest 请求参数无法解码
	ErrBadRequest = errors.New("rpc: bad request")
)

var (
	codesMu sync.RWMutex
	codes   = map[string]error{}
)

func init() {
	RegisterErrorCode(CodeMethodNotFound, ErrMethodNotFound)
	RegisterErrorCode(CodeBadRequest, ErrBadRequest)
}

// RegisterErrorCode 登记错误码与哨兵错误的对应关系
//
// 服务端返回的错误若 errors.Is 某个哨兵，则以其错误码发送；客户端
// 收到该错误码时 RemoteError 解包为同一哨兵。
func RegisterErrorCode(code string, sentinel error) {
	codesMu.Lock()
	defer codesMu.Unlock()
	codes[code] = sentinel
}

func codeOf(err error) string {
	codesMu.RLock()
	defer codesMu.RUnlock()
	for code, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

func sentinelOf(code string) error {
	codesMu.RLock()
	defer codesMu.RUnlock()
	return codes[code]
}

// RemoteError 远端处理器返回的错误
type RemoteError struct {
	Code    string `msgpack:"c"`
	Message string `msgpack:"m"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc remote error [%s]: %s", e.Code, e.Message)
}

// Unwrap 返回错误码对应的本地哨兵错误
func (e *RemoteError) Unwrap() error {
	return sentinelOf(e.Code)
}

func toRemoteError(err error) *RemoteError {
	return &RemoteError{Code: codeOf(err), Message: err.Error()}
}

package proxy

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// StatusInvalidSSLCertificate 对端身份与请求的 nodeId 不符
const StatusInvalidSSLCertificate = 526

// ============================================================================
//                              本地 CONNECT 入口
// ============================================================================

// handleConnect 处理本地 CONNECT 请求
//
// 验证令牌和目标后打开（或复用）到目标的正向连接，在其上打开新流，
// 回复 200 后把本地 TCP 连接与该流拼接。
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodConnect {
		p.reject(w, http.StatusMethodNotAllowed, "only CONNECT is supported")
		return
	}
	if !p.authorized(r.Header.Get("Proxy-Authorization")) {
		w.Header().Set("Proxy-Authenticate", `Basic realm="secretmesh"`)
		p.reject(w, http.StatusProxyAuthRequired, "bad proxy authorization")
		return
	}

	host, port, nodeID, err := parseConnectTarget(r)
	if err != nil {
		p.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := p.AcquireConnectionForward(r.Context(), types.NodeIDSet{nodeID}, host, port)
	if err != nil {
		code := ingressStatus(err)
		logger.Debug("CONNECT 打开连接失败", "target", r.URL.Host, "code", code, "error", err)
		p.reject(w, code, err.Error())
		return
	}
	defer handle.Release()

	stream, err := handle.OpenStream(r.Context())
	if err != nil {
		p.reject(w, http.StatusBadGateway, err.Error())
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		_ = stream.Close()
		p.reject(w, http.StatusInternalServerError, "hijack unsupported")
		return
	}
	client, buf, err := hj.Hijack()
	if err != nil {
		_ = stream.Close()
		logger.Warn("CONNECT hijack 失败", "error", err)
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		_ = client.Close()
		_ = stream.Close()
		return
	}
	p.metrics.IngressRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	// 客户端可能在收到 200 前就已发送数据
	if n := buf.Reader.Buffered(); n > 0 {
		pending, _ := buf.Reader.Peek(n)
		if _, err := stream.Write(pending); err != nil {
			_ = client.Close()
			_ = stream.Close()
			return
		}
	}

	p.metrics.StreamsSpliced.Inc()
	splice(client, stream)
}

func (p *Proxy) reject(w http.ResponseWriter, code int, msg string) {
	p.metrics.IngressRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	http.Error(w, msg, code)
}

// authorized 检查 Proxy-Authorization: Basic <base64(token)>
func (p *Proxy) authorized(header string) bool {
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return false
	}
	token, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(token, []byte(p.token)) == 1
}

// parseConnectTarget 解析 CONNECT host:port?nodeId=<base58>
func parseConnectTarget(r *http.Request) (string, uint16, types.NodeID, error) {
	if r.URL == nil || r.URL.Host == "" {
		return "", 0, types.EmptyNodeID, errors.New("missing target")
	}
	host, portStr, err := net.SplitHostPort(r.URL.Host)
	if err != nil {
		return "", 0, types.EmptyNodeID, errors.New("target must be host:port")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, types.EmptyNodeID, errors.New("invalid target port")
	}
	if _, _, err := resolveTarget(host, uint16(port)); err != nil {
		return "", 0, types.EmptyNodeID, err
	}

	raw := r.URL.Query().Get("nodeId")
	if raw == "" {
		return "", 0, types.EmptyNodeID, errors.New("missing nodeId")
	}
	nodeID, err := types.ParseNodeID(raw)
	if err != nil {
		return "", 0, types.EmptyNodeID, err
	}
	return host, uint16(port), nodeID, nil
}

// ingressStatus 将打开连接的错误映射为响应码
func ingressStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrConnectionStartTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrConnectionVerify):
		return StatusInvalidSSLCertificate
	default:
		return http.StatusBadGateway
	}
}

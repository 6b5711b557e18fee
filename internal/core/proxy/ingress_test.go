package proxy

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// rawConnect 发送原始 CONNECT 请求并返回响应码
func rawConnect(t *testing.T, ingress types.NodeAddress, requestURI, token string) int {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ingress.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	host, _, _ := strings.Cut(requestURI, "?")
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", requestURI, host)
	if token != "" {
		req += "Proxy-Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(token)) + "\r\n"
	}
	req += "\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

// TestIngress_Validation 入口在打开连接前拒绝无效请求
func TestIngress_Validation(t *testing.T) {
	a := newNode(t)
	ingress := a.proxy.ForwardAddress()
	nodeID := a.id.String()

	tests := []struct {
		name   string
		uri    string
		token  string
		status int
	}{
		{"wrong token", "127.0.0.1:80?nodeId=" + nodeID, "wrong", http.StatusProxyAuthRequired},
		{"missing token", "127.0.0.1:80?nodeId=" + nodeID, "", http.StatusProxyAuthRequired},
		{"wildcard host", "0.0.0.0:80?nodeId=" + nodeID, "secret", http.StatusBadRequest},
		{"wildcard ipv6", "[::]:80?nodeId=" + nodeID, "secret", http.StatusBadRequest},
		{"hostname", "localhost:80?nodeId=" + nodeID, "secret", http.StatusBadRequest},
		{"missing port", "127.0.0.1?nodeId=" + nodeID, "secret", http.StatusBadRequest},
		{"missing nodeId", "127.0.0.1:80", "secret", http.StatusBadRequest},
		{"bad nodeId", "127.0.0.1:80?nodeId=0OIl", "secret", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, rawConnect(t, ingress, tt.uri, tt.token))
		})
	}
	assert.Equal(t, 0, a.proxy.ConnectionForwardCount())
}

// TestIngress_Unreachable 目标不可达返回 502
func TestIngress_Unreachable(t *testing.T) {
	a := newNode(t)

	// IPv4 套接字无法向 IPv6 地址发送
	uri := "[::1]:9?nodeId=" + a.id.String()
	assert.Equal(t, http.StatusBadGateway, rawConnect(t, a.proxy.ForwardAddress(), uri, "secret"))
	assert.Equal(t, 0, a.proxy.ConnectionForwardCount())
}

// TestIngress_Timeout 目标可达但不回应返回 504
func TestIngress_Timeout(t *testing.T) {
	a := newNode(t, func(c *Config) { c.ConnConnectTime = 300 * time.Millisecond })

	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer silent.Close()

	uri := silent.LocalAddr().String() + "?nodeId=" + a.id.String()
	assert.Equal(t, http.StatusGatewayTimeout, rawConnect(t, a.proxy.ForwardAddress(), uri, "secret"))
}

// TestIngress_IdentityMismatch 对端身份不符返回 526
func TestIngress_IdentityMismatch(t *testing.T) {
	a, b := newNode(t), newNode(t)

	var other types.NodeID
	_, _ = rand.Read(other[:])

	uri := b.addr().String() + "?nodeId=" + other.String()
	assert.Equal(t, StatusInvalidSSLCertificate, rawConnect(t, a.proxy.ForwardAddress(), uri, "secret"))
}

// TestDialTunnel 通过入口的隧道与对端本地服务拼接
func TestDialTunnel(t *testing.T) {
	a, b := newNode(t), newNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := DialTunnel(ctx, a.proxy.ForwardAddress(), a.proxy.AuthToken(), b.id, b.addr())
	require.NoError(t, err)
	defer conn.Close()

	roundTrip(t, conn, "ping over tunnel")
	roundTrip(t, conn, "second message")

	// 第二条隧道复用同一连接
	conn2, err := DialTunnel(ctx, a.proxy.ForwardAddress(), a.proxy.AuthToken(), b.id, b.addr())
	require.NoError(t, err)
	defer conn2.Close()
	roundTrip(t, conn2, "another stream")
	assert.Equal(t, 1, a.proxy.ConnectionForwardCount())

	_, err = DialTunnel(ctx, a.proxy.ForwardAddress(), "wrong", b.id, b.addr())
	var tunnelErr *TunnelError
	require.True(t, errors.As(err, &tunnelErr))
	assert.Equal(t, http.StatusProxyAuthRequired, tunnelErr.StatusCode)
}

// TestIngressStatus 错误到响应码的映射
func TestIngressStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ingressStatus(ErrInvalidTarget))
	assert.Equal(t, http.StatusGatewayTimeout, ingressStatus(composeError(context.DeadlineExceeded)))
	assert.Equal(t, StatusInvalidSSLCertificate, ingressStatus(fmt.Errorf("%w: x", ErrConnectionVerify)))
	assert.Equal(t, http.StatusBadGateway, ingressStatus(ErrConnectionStart))
	assert.Equal(t, http.StatusBadGateway, ingressStatus(ErrProxyNotRunning))
}

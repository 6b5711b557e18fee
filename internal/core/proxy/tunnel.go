package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/dep2p/go-secretmesh/pkg/types"
)

// TunnelError CONNECT 入口返回的非 200 响应
type TunnelError struct {
	StatusCode int
	Status     string
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("proxy: connect rejected: %s", e.Status)
}

// DialTunnel 通过本地 CONNECT 入口建立到目标节点的隧道
//
// ingress 为入口地址（ForwardAddress），返回的连接已与远端节点的
// 本地服务拼接。
func DialTunnel(ctx context.Context, ingress types.NodeAddress, token string, nodeID types.NodeID, target types.NodeAddress) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ingress.String())
	if err != nil {
		return nil, fmt.Errorf("dial ingress: %w", err)
	}

	// 握手期间遵守 ctx
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := &http.Request{
		Method: http.MethodConnect,
		// 请求行为 host:port?nodeId=<base58>
		URL:    &url.URL{Opaque: target.String() + "?nodeId=" + url.QueryEscape(nodeID.String())},
		Host:   target.String(),
		Header: make(http.Header),
	}
	req.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(token)))

	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("write connect: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, &TunnelError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if !stop() {
		_ = conn.Close()
		return nil, ctx.Err()
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn 先读出 bufio 中已缓冲的数据
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

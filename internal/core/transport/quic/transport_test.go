package quic

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-secretmesh/internal/core/identity"
	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
)

func newTestTransport(t *testing.T) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	cert, err := id.TLSCertificate()
	require.NoError(t, err)

	conf := NewConfig(ConfigParams{
		HandshakeTimeout:  5 * time.Second,
		KeepAliveInterval: time.Second,
		IdleTimeout:       10 * time.Second,
	})
	tr, err := Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, mtls.ServerConfig(cert), conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, id
}

// TestTransport_DialAccept 同一端口上拨号与接收，并在流上交换数据
func TestTransport_DialAccept(t *testing.T) {
	server, serverID := newTestTransport(t)
	client, clientID := newTestTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientCert, err := clientID.TLSCertificate()
	require.NoError(t, err)

	accepted := make(chan error, 1)
	go func() {
		conn, err := server.Accept(ctx)
		if err != nil {
			accepted <- err
			return
		}
		s, err := conn.AcceptStream(ctx)
		if err != nil {
			accepted <- err
			return
		}
		stream := NewStream(s, conn)
		_, err = io.Copy(stream, stream)
		_ = stream.CloseWrite()
		accepted <- err
	}()

	conn, err := client.Dial(ctx, server.LocalAddr(), mtls.ClientConfig(clientCert))
	require.NoError(t, err)
	defer func() { _ = conn.CloseWithError(0, "") }()

	got, err := mtls.VerifyClientChain(PeerChain(conn), time.Now())
	require.NoError(t, err)
	assert.Equal(t, serverID.NodeID(), got)

	s, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)
	stream := NewStream(s, conn)
	assert.Equal(t, server.LocalAddr().String(), stream.RemoteAddr().String())

	_, err = stream.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, stream.CloseWrite())

	echo, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(echo))
	require.NoError(t, <-accepted)
}

// TestTransport_NonQUICPackets 非 QUIC 包交给 ReadPacket
func TestTransport_NonQUICPackets(t *testing.T) {
	a, _ := newTestTransport(t)
	b, _ := newTestTransport(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先开始读取，quic-go 只在有读者时缓存非 QUIC 包
	type result struct {
		data []byte
		from net.Addr
		err  error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 64)
		n, from, err := b.ReadPacket(ctx, buf)
		done <- result{buf[:n], from, err}
	}()

	payload := []byte{0x01, 'p', 'i', 'n', 'g'}
	var r result
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for sent := false; !sent; {
		_, err := a.WriteTo(payload, b.LocalAddr())
		require.NoError(t, err)
		select {
		case r = <-done:
			sent = true
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("未收到非 QUIC 数据包")
		}
	}
	require.NoError(t, r.err)
	assert.Equal(t, payload, r.data)
	assert.Equal(t, a.LocalAddr().String(), r.from.String())
}

// TestTransport_Closed 关闭后的操作返回 ErrTransportClosed
func TestTransport_Closed(t *testing.T) {
	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Accept(context.Background())
	assert.ErrorIs(t, err, ErrTransportClosed)
	_, err = tr.WriteTo([]byte{1}, tr.LocalAddr())
	assert.ErrorIs(t, err, ErrTransportClosed)
}

package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomNodeID(t *testing.T) NodeID {
	t.Helper()
	var id NodeID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

// TestNodeID_StringRoundTrip 测试 Base58 编解码
func TestNodeID_StringRoundTrip(t *testing.T) {
	id := randomNodeID(t)

	parsed, err := ParseNodeID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.ShortString(), 8)
}

// TestParseNodeID_Invalid 测试无效输入
func TestParseNodeID_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad alphabet", "0OIl"},
		{"too short", "3mJr7AoUXx2Wqd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNodeID(tt.input)
			assert.ErrorIs(t, err, ErrInvalidNodeID)
		})
	}
}

// TestNodeIDFromPublicKey 测试公钥派生是确定性的
func TestNodeIDFromPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a := NodeIDFromPublicKey(pub)
	b := NodeIDFromPublicKey(pub)
	assert.Equal(t, a, b)
	assert.False(t, a.IsEmpty())
}

// TestNodeID_JSON 测试 JSON 中以 Base58 字符串表示
func TestNodeID_JSON(t *testing.T) {
	id := randomNodeID(t)
	data, err := json.Marshal(NodeData{ID: id, Address: NodeAddress{Host: "127.0.0.1", Port: 55555}})
	require.NoError(t, err)
	assert.Contains(t, string(data), id.String())

	var out NodeData
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out.ID)
	assert.Equal(t, uint16(55555), out.Address.Port)
}

// TestNodeIDSet_Contains 测试集合查询
func TestNodeIDSet_Contains(t *testing.T) {
	a, b := randomNodeID(t), randomNodeID(t)
	set := NodeIDSet{a}
	assert.True(t, set.Contains(a))
	assert.False(t, set.Contains(b))
}

// TestParseNodeAddress 测试地址解析
func TestParseNodeAddress(t *testing.T) {
	addr, err := ParseNodeAddress("127.0.0.1:1314")
	require.NoError(t, err)
	assert.Equal(t, NodeAddress{Host: "127.0.0.1", Port: 1314}, addr)
	assert.Equal(t, "127.0.0.1:1314", addr.String())

	addr, err = ParseNodeAddress("[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, "::1", addr.Host)

	for _, bad := range []string{"", "127.0.0.1", ":80", "host:99999"} {
		_, err := ParseNodeAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

// TestNodeAddress_AddrPortUnmaps 测试 IPv4 映射地址还原
func TestNodeAddress_AddrPortUnmaps(t *testing.T) {
	ap, err := NodeAddress{Host: "::ffff:10.0.0.1", Port: 9}.AddrPort()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9", ap.String())

	_, err = NodeAddress{Host: "example.com", Port: 9}.AddrPort()
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

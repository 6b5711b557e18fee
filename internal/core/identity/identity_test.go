package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mtls "github.com/dep2p/go-secretmesh/internal/core/security/tls"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

// TestGenerate_SignVerify 测试签名与验证
func TestGenerate_SignVerify(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	assert.Equal(t, types.NodeIDFromPublicKey(id.PublicKey()), id.NodeID())

	sig := id.Sign([]byte("hello"))
	assert.True(t, Verify(id.PublicKey(), []byte("hello"), sig))
	assert.False(t, Verify(id.PublicKey(), []byte("hellp"), sig))
	assert.False(t, Verify(id.PublicKey(), []byte("hello"), sig[:10]))
}

// TestTLSCertificate 证书派生的 NodeID 与身份一致，且被缓存
func TestTLSCertificate(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	cert, err := id.TLSCertificate()
	require.NoError(t, err)
	derived, err := mtls.DeriveNodeID(cert.Leaf)
	require.NoError(t, err)
	assert.Equal(t, id.NodeID(), derived)

	again, err := id.TLSCertificate()
	require.NoError(t, err)
	assert.Same(t, cert, again)

	id.SetCertValidity(time.Minute)
	renewed, err := id.TLSCertificate()
	require.NoError(t, err)
	assert.NotSame(t, cert, renewed)
	assert.WithinDuration(t, time.Now().Add(time.Minute), renewed.Leaf.NotAfter, 5*time.Second)
}

// TestLoadOrCreate 首次生成，再次加载得到同一身份
func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	first, err := LoadOrCreate(path, true)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreate(path, true)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID(), second.NodeID())
}

// TestLoadOrCreate_NoAutoGenerate 不自动生成时返回 ErrKeyNotFound
func TestLoadOrCreate_NoAutoGenerate(t *testing.T) {
	_, err := LoadOrCreate(filepath.Join(t.TempDir(), "missing.key"), false)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestLoadPrivateKeyPEM_Invalid 损坏的 PEM
func TestLoadPrivateKeyPEM_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := LoadPrivateKeyPEM(path)
	assert.ErrorIs(t, err, ErrInvalidPEM)
}

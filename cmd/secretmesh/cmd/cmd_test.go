package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/pkg/types"
)

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// TestVersionCmd 输出版本号
func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	c := newCommand(withOutput(&out), withArgs("version"))
	require.NoError(t, c.root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

// TestNodeIDCmd 两次运行得到同一个标识
func TestNodeIDCmd(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Identity.KeyFile = filepath.Join(t.TempDir(), "node.key")
	cfg.Identity.AutoGenerate = true
	path := writeConfig(t, cfg)

	run := func() string {
		var out bytes.Buffer
		c := newCommand(withOutput(&out), withArgs("nodeid", "--config", path))
		require.NoError(t, c.root.Execute())
		return strings.TrimSpace(out.String())
	}

	first := run()
	_, err := types.ParseNodeID(first)
	require.NoError(t, err)
	assert.Equal(t, first, run())
}

// TestConfigCmd 打印的配置可以重新加载
func TestConfigCmd(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Proxy.ProxyPort = 1314
	path := writeConfig(t, cfg)

	var out bytes.Buffer
	c := newCommand(withOutput(&out), withArgs("config", "--config", path))
	require.NoError(t, c.root.Execute())

	var got config.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, uint16(1314), got.Proxy.ProxyPort)
}

// TestApplyStartFlags 显式参数覆盖配置
func TestApplyStartFlags(t *testing.T) {
	c := newCommand()
	start, _, err := c.root.Find([]string{"agent", "start"})
	require.NoError(t, err)
	require.NoError(t, start.Flags().Parse([]string{"--proxy-port", "2000", "--in-memory", "--log-level", "debug"}))

	cfg := config.NewConfig()
	cfg.Proxy.ForwardPort = 7
	require.NoError(t, applyStartFlags(start, cfg))
	assert.Equal(t, uint16(2000), cfg.Proxy.ProxyPort)
	assert.Equal(t, uint16(7), cfg.Proxy.ForwardPort)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.NoError(t, start.Flags().Set(optionNameLogLevel, "loud"))
	assert.Error(t, applyStartFlags(start, cfg))
}

// TestMissingConfig 配置文件不存在
func TestMissingConfig(t *testing.T) {
	var out bytes.Buffer
	c := newCommand(withOutput(&out), withArgs("config", "--config", filepath.Join(t.TempDir(), "nope.json")))
	assert.Error(t, c.root.Execute())
}

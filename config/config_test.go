package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, 20*time.Second, cfg.Proxy.ConnConnectTime.Duration())
	assert.Equal(t, time.Second, cfg.Proxy.ConnKeepAliveIntervalTime.Duration())
	assert.Equal(t, 20*time.Second, cfg.Proxy.ConnKeepAliveTimeoutTime.Duration())
	assert.Equal(t, time.Second, cfg.Proxy.ConnEndTime.Duration())
	assert.Equal(t, 20, cfg.NodeGraph.BucketSize)
	assert.Equal(t, 3, cfg.NodeConn.InitialClosestNodes)
}

// TestFromJSON 未出现字段保留默认值
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"proxy": {"proxy_port": 1314, "conn_keep_alive_timeout_time": "2s"},
		"node_graph": {"bucket_size": 4},
		"node_conn": {"seed_nodes": [{"node_id": "abc", "host": "10.0.0.1", "port": 1314}]}
	}`)
	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint16(1314), cfg.Proxy.ProxyPort)
	assert.Equal(t, 2*time.Second, cfg.Proxy.ConnKeepAliveTimeoutTime.Duration())
	assert.Equal(t, time.Second, cfg.Proxy.ConnKeepAliveIntervalTime.Duration())
	assert.Equal(t, 4, cfg.NodeGraph.BucketSize)
	require.Len(t, cfg.NodeConn.SeedNodes, 1)
	assert.Equal(t, "10.0.0.1", cfg.NodeConn.SeedNodes[0].Host)

	_, err = FromJSON([]byte(`{"proxy": {"conn_end_time": "soon"}}`))
	assert.Error(t, err)
}

// TestConfig_Validate 各子配置的错误值
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty forward host", func(c *Config) { c.Proxy.ForwardHost = "" }},
		{"timeout below interval", func(c *Config) { c.Proxy.ConnKeepAliveTimeoutTime = c.Proxy.ConnKeepAliveIntervalTime }},
		{"zero bucket size", func(c *Config) { c.NodeGraph.BucketSize = 0 }},
		{"bad id bits", func(c *Config) { c.NodeGraph.NodeIDBits = 160 }},
		{"zero alpha", func(c *Config) { c.NodeConn.InitialClosestNodes = 0 }},
		{"incomplete seed", func(c *Config) { c.NodeConn.SeedNodes = []SeedNode{{NodeID: "x"}} }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddr = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

// TestLoadFile 读取文件并往返 JSON
func TestLoadFile(t *testing.T) {
	cfg := NewConfig()
	cfg.Proxy.AuthToken = "secret"
	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conn_connect_time": "20s"`)

	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestDuration_UnmarshalNumber 数字按纳秒解析
func TestDuration_UnmarshalNumber(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`1500000000`)))
	assert.Equal(t, 1500*time.Millisecond, d.Duration())
	assert.Equal(t, "1.5s", d.String())
}

package storage

import (
	"time"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/core/storage/engine"
)

// ConfigFromUnified 从统一配置构建引擎配置
func ConfigFromUnified(cfg *config.Config) *engine.Config {
	if cfg == nil {
		return engine.DefaultConfig("")
	}
	ec := engine.DefaultConfig(cfg.Storage.DBPath())
	ec.InMemory = cfg.Storage.InMemory
	if ec.InMemory {
		ec.Path = ""
		ec.GCInterval = 0
	} else {
		ec.GCInterval = 10 * time.Minute
	}
	return ec
}

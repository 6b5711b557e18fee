package identity

import (
	"path/filepath"

	"go.uber.org/fx"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
}

// ProvideIdentity 加载或创建本节点身份
//
// 密钥路径优先使用 identity.key_file，否则为 DataDir/node.key。
// 内存存储模式且未指定路径时生成临时身份。
func ProvideIdentity(in ModuleInput) (*Identity, error) {
	cfg := in.Config
	path := cfg.Identity.KeyFile
	if path == "" {
		if cfg.Storage.InMemory {
			id, err := Generate()
			if err != nil {
				return nil, err
			}
			id.SetCertValidity(cfg.Identity.CertValidity.Duration())
			return id, nil
		}
		path = filepath.Join(cfg.Storage.DataDir, "node.key")
	}

	id, err := LoadOrCreate(path, cfg.Identity.AutoGenerate)
	if err != nil {
		return nil, err
	}
	id.SetCertValidity(cfg.Identity.CertValidity.Duration())
	return id, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-secretmesh/config"
	"github.com/dep2p/go-secretmesh/internal/app"
)

func (c *command) initAgentCmd() {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage the agent",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if err := applyStartFlags(cmd, cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := app.NewBootstrap(cfg).Build(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("node id:       %s\n", rt.Identity.NodeID())
			cmd.Printf("proxy address: %s\n", rt.Proxy.ProxyAddress())
			cmd.Printf("forward:       %s\n", rt.Proxy.ForwardAddress())
			cmd.Printf("auth token:    %s\n", rt.Proxy.AuthToken())

			<-ctx.Done()
			return rt.Stop(context.Background())
		},
	}
	f := start.Flags()
	f.String(optionNameDataDir, "", "data directory, overrides storage.data_dir")
	f.String(optionNameProxyHost, "", "UDP proxy host, overrides proxy.proxy_host")
	f.Uint16(optionNameProxyPort, 0, "UDP proxy port, overrides proxy.proxy_port")
	f.Uint16(optionNameForwardPort, 0, "CONNECT ingress port, overrides proxy.forward_port")
	f.Uint16(optionNameServerPort, 0, "local RPC port, overrides proxy.server_port")
	f.String(optionNameLogLevel, "", "log level: debug, info, warn, error")
	f.Bool(optionNameInMemory, false, "keep the node graph and identity in memory")

	agent.AddCommand(start)
	c.root.AddCommand(agent)
}

// applyStartFlags 用显式设置的命令行参数覆盖配置
func applyStartFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed(optionNameDataDir) {
		cfg.Storage.DataDir, err = f.GetString(optionNameDataDir)
		if err != nil {
			return err
		}
	}
	if f.Changed(optionNameProxyHost) {
		if cfg.Proxy.ProxyHost, err = f.GetString(optionNameProxyHost); err != nil {
			return err
		}
	}
	if f.Changed(optionNameProxyPort) {
		if cfg.Proxy.ProxyPort, err = f.GetUint16(optionNameProxyPort); err != nil {
			return err
		}
	}
	if f.Changed(optionNameForwardPort) {
		if cfg.Proxy.ForwardPort, err = f.GetUint16(optionNameForwardPort); err != nil {
			return err
		}
	}
	if f.Changed(optionNameServerPort) {
		if cfg.Proxy.ServerPort, err = f.GetUint16(optionNameServerPort); err != nil {
			return err
		}
	}
	if f.Changed(optionNameLogLevel) {
		if cfg.Log.Level, err = f.GetString(optionNameLogLevel); err != nil {
			return err
		}
	}
	if f.Changed(optionNameInMemory) {
		if cfg.Storage.InMemory, err = f.GetBool(optionNameInMemory); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

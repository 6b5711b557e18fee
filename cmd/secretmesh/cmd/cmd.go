// Package cmd 实现 secretmesh 的子命令
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-secretmesh/config"
)

const (
	optionNameConfig      = "config"
	optionNameDataDir     = "data-dir"
	optionNameProxyHost   = "proxy-host"
	optionNameProxyPort   = "proxy-port"
	optionNameForwardPort = "forward-port"
	optionNameServerPort  = "server-port"
	optionNameLogLevel    = "log-level"
	optionNameInMemory    = "in-memory"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	cfgFile string
}

type option func(*command)

// withOutput 重定向命令输出，测试中使用
func withOutput(w io.Writer) option {
	return func(c *command) {
		c.root.SetOut(w)
		c.root.SetErr(w)
	}
}

func withArgs(args ...string) option {
	return func(c *command) {
		c.root.SetArgs(args)
	}
}

func newCommand(opts ...option) *command {
	c := &command{
		root: &cobra.Command{
			Use:           "secretmesh",
			Short:         "Secrets agent peer connectivity",
			SilenceErrors: true,
			SilenceUsage:  true,
		},
	}
	c.root.PersistentFlags().StringVar(&c.cfgFile, optionNameConfig, "", "config file (JSON)")

	c.initAgentCmd()
	c.initNodeIDCmd()
	c.initConfigCmd()
	c.initVersionCmd()

	for _, o := range opts {
		o(c)
	}
	return c
}

// Execute 运行根命令
func Execute() error {
	return newCommand().root.Execute()
}

// loadConfig 读取 --config，未指定时使用默认配置
func (c *command) loadConfig() (*config.Config, error) {
	if c.cfgFile == "" {
		return config.NewConfig(), nil
	}
	return config.LoadFile(c.cfgFile)
}

func (c *command) initVersionCmd() {
	c.root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(Version)
		},
	})
}

func (c *command) initConfigCmd() {
	c.root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.ToJSON()
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	})
}

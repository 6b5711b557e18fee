package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-secretmesh/internal/core/identity"
)

func (c *command) initNodeIDCmd() {
	c.root.AddCommand(&cobra.Command{
		Use:   "nodeid",
		Short: "Print the node id, creating the key if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Identity.KeyFile
			if path == "" {
				path = filepath.Join(cfg.Storage.DataDir, "node.key")
			}
			id, err := identity.LoadOrCreate(path, cfg.Identity.AutoGenerate)
			if err != nil {
				return err
			}
			cmd.Println(id.NodeID().String())
			return nil
		},
	})
}

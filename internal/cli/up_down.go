package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/registry"
	"github.com/pkglab/pkglab/internal/store"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the local registry (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var info registry.Info
		err := store.WithLock(paths, lockTimeout(), func(cat *store.Catalog) error {
			i, err := registry.Up(ctx, cfg, paths.Registry, cat.Registry)
			if err != nil {
				return err
			}
			cat.Registry = i
			info = i
			return nil
		})
		if err != nil {
			return err
		}
		log.Info(log.CatCLI, "registry up", "url", info.URL())
		fmt.Printf("registry running at %s\n", info.URL())
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the local registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.WithLock(paths, lockTimeout(), func(cat *store.Catalog) error {
			i, err := registry.Down(cfg, cat.Registry)
			if err != nil {
				return err
			}
			cat.Registry = i
			fmt.Println("registry stopped")
			return nil
		})
	},
}

func lockTimeout() time.Duration {
	return time.Duration(cfg.LockTimeoutSec) * time.Second
}

func init() {
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
}

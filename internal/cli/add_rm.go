package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/propagate"
	"github.com/pkglab/pkglab/internal/publish"
	"github.com/pkglab/pkglab/internal/store"
)

var addCmd = &cobra.Command{
	Use:   "add SPEC",
	Short: "Register a pin on SPEC (name or name@tag) and install it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, tag := propagate.ParseSpec(args[0])
		if tag == "" {
			tag = publish.Untagged
		}

		consumerDir, err := os.Getwd()
		if err != nil {
			return err
		}

		var version string
		err = store.WithLock(paths, lockTimeout(), func(cat *store.Catalog) error {
			v, err := propagate.Add(cmd.Context(), cat, paths, propagate.AddRequest{
				ConsumerDir: consumerDir,
				Package:     name,
				Tag:         tag,
				RegistryURL: cat.Registry.URL(),
				Token:       config.DummyToken,
			}, propagate.RealInstaller)
			version = v
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", name, version)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a pin and restore the dependency's original manifest entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		consumerDir, err := os.Getwd()
		if err != nil {
			return err
		}

		err = store.WithLock(paths, lockTimeout(), func(cat *store.Catalog) error {
			return propagate.Rm(cmd.Context(), cat, paths, propagate.RmRequest{
				ConsumerDir: consumerDir,
				Package:     args[0],
			}, propagate.RealInstaller)
		})
		if err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rmCmd)
}

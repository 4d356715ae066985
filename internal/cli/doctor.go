package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/registry"
	"github.com/pkglab/pkglab/internal/store"
)

// doctorCmd is a supplemented, read-only diagnostic verb (SPEC_FULL.md §3):
// it never mutates the catalog, so it takes only a read lock.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report registry reachability, lock health, and catalog schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		var info registry.Info
		var schemaOK bool
		err := store.WithReadLock(paths, lockTimeout(), func(cat store.Catalog) error {
			info = cat.Registry
			schemaOK = cat.SchemaVersion == 1
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("catalog:  %s (schema ok: %t)\n", paths.Catalog, schemaOK)
		fmt.Printf("registry: state=%s pid=%d url=%s\n", info.State, info.PID, info.URL())
		if info.URL() != "" {
			pingErr := registry.Ping(cmd.Context(), info.URL())
			fmt.Printf("ping:     %s\n", pingStatus(pingErr))
		}
		return nil
	},
}

func pingStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return "unreachable: " + err.Error()
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/repos"
	"github.com/pkglab/pkglab/internal/store"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Inspect and manage registered consumer repositories",
}

var reposLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered consumers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var dirs []string
		err := store.WithReadLock(paths, lockTimeout(), func(cat store.Catalog) error {
			dirs = repos.List(cat)
			return nil
		})
		if err != nil {
			return err
		}
		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dirs)
		}
		if len(dirs) == 0 {
			fmt.Println("No linked repos")
			return nil
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	},
}

var (
	resetAll   bool
	resetStale bool
)

var reposResetCmd = &cobra.Command{
	Use:   "reset [DIR]",
	Short: "Restore a consumer's manifest and lockfile from backup and de-register it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetAll && resetStale {
			return pkgerrors.New(pkgerrors.ConflictingOptions, "--all/--stale", nil)
		}
		if (resetAll || resetStale) && len(args) == 1 {
			return pkgerrors.New(pkgerrors.ConflictingOptions, "DIR/--all|--stale", nil)
		}
		if !resetAll && !resetStale && len(args) == 0 {
			return pkgerrors.New(pkgerrors.ConflictingOptions, "DIR or --all or --stale is required", nil)
		}

		return store.WithLock(paths, lockTimeout(), func(cat *store.Catalog) error {
			switch {
			case resetStale:
				for _, o := range repos.ResetStale(cat) {
					fmt.Printf("Removed stale %s\n", o.Dir)
				}
			case resetAll:
				for _, o := range repos.ResetAll(cat, paths) {
					if o.Skipped {
						fmt.Printf("Skipping %s\n", o.Dir)
						continue
					}
					fmt.Printf("Reset %s\n", o.Dir)
				}
			default:
				dir, err := store.CanonicalDir(args[0])
				if err != nil {
					return err
				}
				if err := repos.Reset(cat, paths, dir); err != nil {
					return err
				}
				fmt.Printf("Reset %s\n", dir)
			}
			return nil
		})
	},
}

func init() {
	reposResetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every registered consumer, skipping missing directories")
	reposResetCmd.Flags().BoolVar(&resetStale, "stale", false, "de-register every consumer whose directory no longer exists")

	reposCmd.AddCommand(reposLsCmd)
	reposCmd.AddCommand(reposResetCmd)
	rootCmd.AddCommand(reposCmd)
}

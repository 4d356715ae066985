package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/store"
)

var pkgCmd = &cobra.Command{
	Use:   "pkg",
	Short: "Inspect published packages",
}

type publishedEntry struct {
	Package string `json:"package"`
	Tag     string `json:"tag"`
	Version string `json:"version"`
}

var pkgLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every published (package, tag, version)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []publishedEntry
		err := store.WithReadLock(paths, lockTimeout(), func(cat store.Catalog) error {
			for key, rec := range cat.Published {
				pkg, tag := store.SplitPublishKey(key)
				if tag == "" {
					tag = store.Untagged
				}
				entries = append(entries, publishedEntry{Package: pkg, Tag: tag, Version: rec.Version})
			}
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Package != entries[j].Package {
				return entries[i].Package < entries[j].Package
			}
			return entries[i].Tag < entries[j].Tag
		})

		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		for _, e := range entries {
			fmt.Printf("%s %s %s\n", e.Package, e.Tag, e.Version)
		}
		return nil
	},
}

func init() {
	pkgCmd.AddCommand(pkgLsCmd)
	rootCmd.AddCommand(pkgCmd)
}

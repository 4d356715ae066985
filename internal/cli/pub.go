package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/publish"
	"github.com/pkglab/pkglab/internal/store"
)

var (
	pubTag      string
	pubWorktree bool
	pubDryRun   bool
)

var pubCmd = &cobra.Command{
	Use:   "pub [NAME]",
	Short: "Publish changed packages in a selector's dependency closure",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector := ""
		if len(args) == 1 {
			selector = args[0]
		}

		producerDir, err := os.Getwd()
		if err != nil {
			return err
		}

		var registryURL string
		if err := store.WithReadLock(paths, lockTimeout(), func(cat store.Catalog) error {
			registryURL = cat.Registry.URL()
			return nil
		}); err != nil {
			return err
		}

		req := publish.Request{
			ProducerDir: producerDir,
			Selector:    selector,
			Tag:         pubTag,
			Worktree:    pubWorktree,
			DryRun:      pubDryRun,
			RegistryURL: registryURL,
			Token:       config.DummyToken,
		}
		deps := publish.Dependencies{VCS: vcsExecutor(), Paths: paths, Cfg: cfg}

		res, err := publish.Run(cmd.Context(), req, deps)
		if err != nil {
			return err
		}

		for _, name := range res.Published {
			fmt.Println(name)
		}
		fmt.Println(publish.CountLine(len(res.Published)))

		if len(res.PropagateFailures) == 0 {
			return nil
		}
		for _, f := range res.PropagateFailures {
			fmt.Fprintln(os.Stderr, RenderError(f.Err))
		}
		return errAlreadyReported
	},
}

func init() {
	pubCmd.Flags().StringVarP(&pubTag, "tag", "t", "", "publish to this tag instead of the default channel")
	pubCmd.Flags().BoolVarP(&pubWorktree, "worktree", "w", false, "derive the tag from the current branch name")
	pubCmd.Flags().BoolVar(&pubDryRun, "dry-run", false, "compute the publish set without packing, publishing, or rewriting manifests")
	rootCmd.AddCommand(pubCmd)
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/repos"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit non-zero if the current directory has installed pkglab artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		found, err := repos.Check(dir)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return nil
		}
		for _, f := range found {
			fmt.Fprintln(os.Stderr, f)
		}
		return errAlreadyReported
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

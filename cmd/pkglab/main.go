// Command pkglab is the entry point for the pkglab publishing sandbox.
package main

import (
	"fmt"
	"os"

	"github.com/pkglab/pkglab/internal/cli"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	cli.SetVersion(versionString)
	os.Exit(cli.Execute())
}

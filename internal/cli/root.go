// Package cli is the Command Surface (§4.H): a flat verb set that parses
// options and dispatches to the Publish Pipeline, Propagation Engine,
// Registry Supervisor, and State Store. It carries no business logic of
// its own — every verb's real work lives in the internal package that
// owns it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/store"
	"github.com/pkglab/pkglab/internal/telemetry"
	"github.com/pkglab/pkglab/internal/vcs"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	jsonFlag  bool

	cfg   config.Config
	paths store.Paths

	// telemetryShutdown flushes the tracer provider's batcher when tracing
	// was enabled; nil when --debug was never set.
	telemetryShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:     "pkglab",
	Short:   "A local multi-repository package publishing sandbox",
	Long:    `pkglab publishes packages from a producer workspace to a local registry and propagates version bumps into linked consumer repositories, without polluting consumer manifests with filesystem paths.`,
	Version: version,
	// Every error is rendered by Execute as "<Kind>: <detail>" on stderr;
	// cobra's own "Error:"-prefixed usage dump would duplicate that.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime()
	},
}

// errAlreadyReported lets a RunE print its own multi-line diagnostic
// output (e.g. per-consumer InstallFailed lines) and still signal a
// non-zero exit without Execute appending a second, redundant line.
var errAlreadyReported = errors.New("pkglab: already reported")

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./.pkglab/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging and tracing (also: PKGLAB_DEBUG=1)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit machine-readable JSON for list output")
}

func initRuntime() error {
	loaded, _, err := config.Load(cfgFile)
	if err != nil {
		return pkgerrors.New(pkgerrors.StateCorrupt, cfgFile, err)
	}
	cfg = loaded

	p, err := store.DefaultPaths("")
	if err != nil {
		return pkgerrors.New(pkgerrors.StateCorrupt, "$HOME", err)
	}
	paths = p

	debug := debugFlag || os.Getenv("PKGLAB_DEBUG") != ""
	if debug {
		if cleanup, err := log.Init(paths.Root + "/debug.log"); err == nil {
			_ = cleanup
		}
		if shutdown, err := telemetry.Enable(os.Stderr); err == nil {
			telemetryShutdown = shutdown
		}
	}
	return nil
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.ExecuteContext(context.Background())

	if telemetryShutdown != nil {
		if shutdownErr := telemetryShutdown(context.Background()); shutdownErr != nil {
			log.ErrorErr(log.CatCLI, "failed to flush trace provider", shutdownErr)
		}
	}

	if err != nil {
		if !errors.Is(err, errAlreadyReported) {
			fmt.Fprintln(os.Stderr, RenderError(err))
		}
		return 1
	}
	return 0
}

// SetVersion sets the version string (called from main with ldflags-injected values).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// RenderError formats err as the single stderr diagnostic line §7
// requires: "<Kind>: <detail>" for a typed pkglab error, else a plain
// message with no stack trace.
func RenderError(err error) string {
	var pe *pkgerrors.Error
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}

func vcsExecutor() vcs.Executor {
	return vcs.RealExecutor{}
}

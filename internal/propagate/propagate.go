// Package propagate implements the Propagation Engine: pushing
// newly published versions into every registered consumer that pins the
// published (package, tag), and the add/rm verbs that create or remove
// pins on demand.
package propagate

import (
	"context"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/store"
	"github.com/pkglab/pkglab/internal/telemetry"
)

// Tuple is a newly published (package, tag, version) triple, the unit
// Propagate fans out over.
type Tuple struct {
	Package string
	Tag     string
	Version string
}

// Outcome reports, per consumer, whether the propagation-triggered install
// succeeded. InstallFailed is never fatal to the overall publish.
type Outcome struct {
	Consumer string
	Err      error
}

// Propagate fans out over tuples: for each one, every consumer whose pin
// set contains (package, tag) gets its manifest rewritten to version and
// is reinstalled. Must be called with cat already held under the catalog
// lock (normally from within the same store.WithLock section that
// committed the publish, so propagation is part of one indivisible
// publish-pipeline run).
func Propagate(ctx context.Context, cat *store.Catalog, tuples []Tuple, install Installer) []Outcome {
	ctx, span := telemetry.Start(ctx, "propagate")
	defer span.End()

	var outcomes []Outcome
	for _, tup := range tuples {
		for consumerDir, consumer := range cat.Consumers {
			for _, pk := range consumer.Pins {
				// Tag isolation invariant: a publish at tag T only
				// touches pins whose tag equals T.
				if pk.Package != tup.Package || pk.Tag != tup.Tag {
					continue
				}

				pin := cat.Pins[pk.String()]
				manifestPath := consumerDir + "/package.json"
				if err := pm.SetDependency(manifestPath, pin.ManifestSection, tup.Package, tup.Version); err != nil {
					outcomes = append(outcomes, Outcome{Consumer: consumerDir, Err: pkgerrors.New(pkgerrors.InstallFailed, consumerDir, err)})
					continue
				}
				pin.Version = tup.Version
				cat.Pins[pk.String()] = pin

				if err := install(ctx, pm.Kind(consumer.Kind), consumerDir); err != nil {
					log.ErrorErr(log.CatPropagate, "install failed for consumer, pin still advances", err, "consumer", consumerDir, "package", tup.Package)
					outcomes = append(outcomes, Outcome{Consumer: consumerDir, Err: pkgerrors.New(pkgerrors.InstallFailed, consumerDir, err)})
					continue
				}
				log.Info(log.CatPropagate, "propagated", "consumer", consumerDir, "package", tup.Package, "version", tup.Version)
			}
		}
	}
	return outcomes
}

// Installer abstracts pm.Install so tests can substitute a fake consumer
// install step without invoking a real package-manager binary.
type Installer func(ctx context.Context, kind pm.Kind, dir string) error

// RealInstaller runs the package manager's actual install command.
func RealInstaller(ctx context.Context, kind pm.Kind, dir string) error {
	return pm.Install(ctx, kind, dir)
}

// Package repos implements the read side of `repos ls`/`check` and the
// backup-restore side of `repos reset`: the consumer-lifecycle verbs that
// sit on top of the State Store and Package-Manager Adapter but aren't
// part of the publish/propagate pipeline itself.
package repos

import (
	"fmt"
	"os"
	"sort"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/publish"
	"github.com/pkglab/pkglab/internal/store"
)

// List returns every registered consumer directory, sorted.
func List(cat store.Catalog) []string {
	dirs := make([]string, 0, len(cat.Consumers))
	for dir := range cat.Consumers {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Check reports whether dir has any installed artifact carrying a pkglab
// pre-release version (an @scope/name or name directory directly under
// node_modules whose package.json "version" matches the pkglab grammar).
// A non-empty result means the CLI should exit non-zero: these are
// artifacts that should not ship past this local sandbox.
func Check(dir string) ([]string, error) {
	root := dir + "/node_modules"
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.StateCorrupt, root, err)
	}

	var found []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name()[0] == '@' {
			scoped, err := os.ReadDir(root + "/" + e.Name())
			if err != nil {
				continue
			}
			for _, s := range scoped {
				if pkg := checkOne(root + "/" + e.Name() + "/" + s.Name()); pkg != "" {
					found = append(found, pkg)
				}
			}
			continue
		}
		if pkg := checkOne(root + "/" + e.Name()); pkg != "" {
			found = append(found, pkg)
		}
	}
	sort.Strings(found)
	return found, nil
}

func checkOne(pkgDir string) string {
	m, err := pm.ReadManifest(pkgDir)
	if err != nil {
		return ""
	}
	if publish.IsPkglabVersion(m.Version) {
		return fmt.Sprintf("%s@%s", m.Name, m.Version)
	}
	return ""
}

// Outcome reports the result of resetting one consumer.
type Outcome struct {
	Dir     string
	Skipped bool // directory no longer exists
	Removed bool // --stale: registration removed without restoring files
}

// Reset restores dir's manifest and lockfile from their first-registration
// backup and de-registers the consumer. Must be called under the catalog
// lock; the caller persists cat afterward.
func Reset(cat *store.Catalog, paths store.Paths, dir string) error {
	consumer, ok := cat.Consumers[dir]
	if !ok {
		return pkgerrors.Newf(pkgerrors.UnknownPackage, dir, "no registered consumer at %s", dir)
	}
	if err := restoreBackup(paths, consumer); err != nil {
		return err
	}
	deregister(cat, dir)
	log.Info(log.CatStore, "reset consumer", "consumer", dir)
	return nil
}

// ResetAll resets every registered consumer whose directory still exists,
// reporting a Skipped outcome (and leaving the registration in place, for
// a later --stale pass to clean up) for any that don't.
func ResetAll(cat *store.Catalog, paths store.Paths) []Outcome {
	var outcomes []Outcome
	for _, dir := range List(*cat) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			outcomes = append(outcomes, Outcome{Dir: dir, Skipped: true})
			continue
		}
		if err := Reset(cat, paths, dir); err != nil {
			outcomes = append(outcomes, Outcome{Dir: dir, Skipped: true})
			continue
		}
		outcomes = append(outcomes, Outcome{Dir: dir})
	}
	return outcomes
}

// ResetStale de-registers every consumer whose directory no longer exists,
// without attempting to restore files that have nowhere to land.
func ResetStale(cat *store.Catalog) []Outcome {
	var outcomes []Outcome
	for _, dir := range List(*cat) {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			continue
		}
		deregister(cat, dir)
		outcomes = append(outcomes, Outcome{Dir: dir, Removed: true})
	}
	return outcomes
}

func restoreBackup(paths store.Paths, consumer store.Consumer) error {
	backupDir := paths.BackupDir(consumer.ConsumerHash)
	if err := pm.RestoreFile(backupDir+"/package.json", consumer.Dir+"/package.json"); err != nil {
		return pkgerrors.New(pkgerrors.StateCorrupt, consumer.Dir, err)
	}
	if lockfile := pm.LockfileName(pm.Kind(consumer.Kind)); lockfile != "" {
		if err := pm.RestoreFile(backupDir+"/"+lockfile, consumer.Dir+"/"+lockfile); err != nil {
			return pkgerrors.New(pkgerrors.StateCorrupt, consumer.Dir, err)
		}
	}
	return nil
}

func deregister(cat *store.Catalog, dir string) {
	consumer := cat.Consumers[dir]
	for _, pk := range consumer.Pins {
		delete(cat.Pins, pk.String())
	}
	delete(cat.Consumers, dir)
}

// Package publish implements the Publish Pipeline: tag
// resolution, selection-closure expansion, fingerprint-based change
// filtering, version assignment, transactional manifest rewriting, and
// bounded-concurrency pack+publish in topological order.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/fingerprint"
	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/propagate"
	"github.com/pkglab/pkglab/internal/registry"
	"github.com/pkglab/pkglab/internal/store"
	"github.com/pkglab/pkglab/internal/telemetry"
	"github.com/pkglab/pkglab/internal/vcs"
	"github.com/pkglab/pkglab/internal/workspace"
)

// Request is the Pub verb's parsed input.
type Request struct {
	ProducerDir string
	Selector    string // empty = all packages
	Tag         string // explicit -t value, "" if unset
	Worktree    bool   // -w: derive tag from current branch
	DryRun      bool
	RegistryURL string
	Token       string
}

// Result is what callers print and what drives the exit code.
type Result struct {
	Published []string // package names, in publish order
	Tag       string
	// PropagateFailures holds one entry per failed consumer update (a
	// manifest rewrite or the post-publish install), so a consumer pinning
	// several published packages can appear more than once. Never fatal to
	// the publish itself (§7): the pin and catalog are already committed by
	// the time these are observed.
	PropagateFailures []propagate.Outcome
}

// Dependencies bundles the collaborators publish needs, so tests can
// substitute a fake VCS executor without touching the real git binary.
type Dependencies struct {
	VCS   vcs.Executor
	Paths store.Paths
	Cfg   config.Config
}

// Run executes the full tag-resolve, fingerprint, version-assign, pack-and-publish pipeline.
func Run(ctx context.Context, req Request, deps Dependencies) (Result, error) {
	ctx, span := telemetry.Start(ctx, "publish")
	defer span.End()

	tag, err := resolveTag(req, deps.VCS)
	if err != nil {
		return Result{}, err
	}

	// A down registry must abort before any manifest is touched.
	if !req.DryRun {
		if err := registry.Ping(ctx, req.RegistryURL); err != nil {
			return Result{}, err
		}
	}

	graph, err := workspace.Scan(req.ProducerDir, workspace.RootGlobs(req.ProducerDir))
	if err != nil {
		return Result{}, err
	}

	selected, err := selectionClosure(graph, req.Selector)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = store.WithLock(deps.Paths, lockTimeout(deps.Cfg), func(cat *store.Catalog) error {
		publishSet, fps, err := fingerprintAndFilter(ctx, graph, selected, tag, cat)
		if err != nil {
			return err
		}
		if len(publishSet) == 0 {
			result = Result{Tag: tag}
			return nil
		}

		assignments, err := assignVersions(publishSet, tag, cat)
		if err != nil {
			return err
		}

		if req.DryRun {
			result = Result{Published: publishSet, Tag: tag}
			log.Info(log.CatPublish, "dry run, skipping pack/publish", "packages", publishSet)
			return nil
		}

		backups, err := rewriteManifests(graph, publishSet, assignments, cat, tag)
		defer restoreManifests(backups)
		if err != nil {
			return err
		}

		published, packErr := packAndPublish(ctx, graph, publishSet, req, deps)
		if packErr != nil {
			log.ErrorErr(log.CatPublish, "publish failed, rolling back", packErr)
			return packErr
		}

		commit(cat, publishSet, assignments, fps, tag)

		// Propagation happens strictly after the catalog commit, still
		// inside the same locked critical section, so a concurrent `add`
		// elsewhere observes either the pre- or post-publish state, never
		// a partial one (§5).
		var tuples []propagate.Tuple
		for _, name := range published {
			tuples = append(tuples, propagate.Tuple{Package: name, Tag: tag, Version: assignments[name].Version})
		}
		outcomes := propagate.Propagate(ctx, cat, tuples, propagate.RealInstaller)

		result = Result{Published: published, Tag: tag, PropagateFailures: outcomes}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Info(log.CatPublish, "published", "count", len(result.Published), "tag", result.Tag)
	return result, nil
}

func resolveTag(req Request, executor vcs.Executor) (string, error) {
	if req.Tag != "" && req.Worktree {
		return "", pkgerrors.New(pkgerrors.ConflictingOptions, "-t/-w", nil)
	}
	if req.Worktree {
		branch, err := executor.CurrentBranch(req.ProducerDir)
		if err != nil {
			return "", pkgerrors.New(pkgerrors.InvalidWorkspace, req.ProducerDir, err)
		}
		return vcs.SanitizeTag(branch), nil
	}
	if req.Tag == "" {
		return untagged, nil
	}
	return req.Tag, nil
}

// selectionClosure expands a selector into its publish closure.
func selectionClosure(g *workspace.Graph, selector string) ([]string, error) {
	if selector == "" {
		return g.TopoOrder(), nil
	}
	if _, ok := g.Packages[selector]; !ok {
		return nil, pkgerrors.New(pkgerrors.UnknownPackage, selector, nil)
	}
	closure, err := g.Closure(selector)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(closure))
	for _, n := range closure {
		set[n] = true
	}
	var ordered []string
	for _, n := range g.TopoOrder() {
		if set[n] {
			ordered = append(ordered, n)
		}
	}
	return ordered, nil
}

// fingerprintAndFilter computes a content fingerprint per package and keeps
// only the selected ones that changed since their last publish at tag.
// Every workspace package is fingerprinted, in topological order, so each
// package's in-workspace deps are ready before it is folded even when a dep
// lies outside the selection.
func fingerprintAndFilter(ctx context.Context, g *workspace.Graph, selected []string, tag string, cat *store.Catalog) ([]string, map[string]string, error) {
	_, span := telemetry.Start(ctx, "fingerprint")
	defer span.End()

	inSelection := make(map[string]bool, len(selected))
	for _, name := range selected {
		inSelection[name] = true
	}
	fps := make(map[string]string, len(g.Packages))
	var changed []string

	for _, name := range g.TopoOrder() {
		pkg := g.Packages[name]
		var deps []fingerprint.Dep
		for _, d := range pkg.Deps {
			deps = append(deps, fingerprint.Dep{Name: d, Fingerprint: fps[d]})
		}
		for _, d := range pkg.DevDeps {
			deps = append(deps, fingerprint.Dep{Name: d, Fingerprint: fps[d]})
		}
		fp, err := fingerprint.Compute(pkg.Dir, deps)
		if err != nil {
			return nil, nil, pkgerrors.New(pkgerrors.PackFailed, name, err)
		}
		fps[name] = fp
		if !inSelection[name] {
			continue
		}

		prev := cat.Published[store.PublishKey(name, tag)]
		if fingerprint.Changed(prev.Fingerprint, fp) {
			changed = append(changed, name)
		}
	}
	return changed, fps, nil
}

type assignment struct {
	Version string
	N       int
}

// assignVersions picks the next pre-release number for each publishing package.
func assignVersions(publishSet []string, tag string, cat *store.Catalog) (map[string]assignment, error) {
	out := make(map[string]assignment, len(publishSet))
	for _, name := range publishSet {
		prev := cat.Published[store.PublishKey(name, tag)]
		n := prev.N + 1
		version, err := BuildVersion(tag, n)
		if err != nil {
			return nil, err
		}
		out[name] = assignment{Version: version, N: n}
	}
	return out, nil
}

type manifestBackup struct {
	path, backupPath string
}

// rewriteManifests backs up and rewrites each publishing package's manifest
// with its new version and in-workspace dependency versions. On any error the caller
// must still call restoreManifests with the backups accumulated so far.
func rewriteManifests(g *workspace.Graph, publishSet []string, assignments map[string]assignment, cat *store.Catalog, tag string) ([]manifestBackup, error) {
	inSet := make(map[string]bool, len(publishSet))
	for _, n := range publishSet {
		inSet[n] = true
	}

	var backups []manifestBackup
	for _, name := range publishSet {
		pkg := g.Packages[name]
		manifestPath := filepath.Join(pkg.Dir, "package.json")
		backupPath := manifestPath + ".pkglab-bak"
		if err := pm.BackupFile(manifestPath, backupPath); err != nil {
			return backups, pkgerrors.New(pkgerrors.PackFailed, name, err)
		}
		backups = append(backups, manifestBackup{path: manifestPath, backupPath: backupPath})

		if err := pm.SetVersion(manifestPath, assignments[name].Version); err != nil {
			return backups, pkgerrors.New(pkgerrors.PackFailed, name, err)
		}

		for dep, section := range pkg.Section {
			var version string
			if inSet[dep] {
				version = assignments[dep].Version
			} else {
				version = latestVersion(cat, dep, tag)
			}
			if version == "" {
				continue
			}
			if err := pm.SetDependency(manifestPath, section, dep, version); err != nil {
				return backups, pkgerrors.New(pkgerrors.PackFailed, name, err)
			}
		}
	}
	return backups, nil
}

func latestVersion(cat *store.Catalog, pkg, tag string) string {
	return cat.Published[store.PublishKey(pkg, tag)].Version
}

// restoreManifests returns every touched manifest to its pre-publish
// content: the producer's committed manifests must never carry the
// transient pre-release rewrite. Each backup file is removed once its
// manifest is restored, so it never enters a later fingerprint.
func restoreManifests(backups []manifestBackup) {
	for _, b := range backups {
		if err := pm.RestoreFile(b.backupPath, b.path); err != nil {
			log.ErrorErr(log.CatPublish, "failed to restore manifest", err, "path", b.path)
			continue
		}
		_ = os.Remove(b.backupPath)
	}
}

// packAndPublish runs pack+publish with bounded concurrency, but a
// package never starts publishing before its in-closure dependencies in
// publishSet have already succeeded.
func packAndPublish(ctx context.Context, g *workspace.Graph, publishSet []string, req Request, deps Dependencies) ([]string, error) {
	ctx, span := telemetry.Start(ctx, "pack_and_publish")
	defer span.End()

	concurrency := deps.Cfg.PublishConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	done := make(map[string]chan struct{}, len(publishSet))
	for _, name := range publishSet {
		done[name] = make(chan struct{})
	}

	inSet := make(map[string]bool, len(publishSet))
	for _, n := range publishSet {
		inSet[n] = true
	}

	sem := make(chan struct{}, concurrency)
	var mu sync.Mutex
	var published []string
	var firstErr error
	var wg sync.WaitGroup

	for _, name := range publishSet {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer close(done[name])

			pkg := g.Packages[name]
			for _, dep := range append(append([]string{}, pkg.Deps...), pkg.DevDeps...) {
				if ch, ok := done[dep]; ok && inSet[dep] {
					<-ch
				}
			}

			mu.Lock()
			if firstErr != nil {
				mu.Unlock()
				return
			}
			mu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			tarball, err := pm.Pack(pkg.Dir)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = pkgerrors.New(pkgerrors.PackFailed, name, err)
				}
				mu.Unlock()
				return
			}
			defer os.Remove(tarball)

			kind := pm.Detect(pkg.Dir)
			if err := pm.Publish(ctx, kind, tarball, req.RegistryURL, req.Token); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = pkgerrors.New(pkgerrors.PublishFailed, name, err)
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			published = append(published, name)
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	order := make(map[string]int, len(publishSet))
	for i, n := range publishSet {
		order[n] = i
	}
	sort.Slice(published, func(i, j int) bool { return order[published[i]] < order[published[j]] })
	return published, nil
}

// commit records the catalog half of a successful publish: new versions,
// fingerprints, and timestamps are written under the caller's lock.
func commit(cat *store.Catalog, publishSet []string, assignments map[string]assignment, fps map[string]string, tag string) {
	for _, name := range publishSet {
		a := assignments[name]
		cat.Published[store.PublishKey(name, tag)] = store.PublishRecord{
			Version:     a.Version,
			Fingerprint: fps[name],
			N:           a.N,
			PublishedAt: time.Now(),
		}
	}
}

func lockTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.LockTimeoutSec) * time.Second
}

// CountLine renders the terminal stdout line §4.F requires.
func CountLine(n int) string {
	return fmt.Sprintf("%d packages", n)
}

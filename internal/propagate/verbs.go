package propagate

import (
	"context"
	"strings"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/store"
)

// AddRequest is the `add SPEC` verb's parsed input. SPEC is `name` or
// `name@tag`; Tag is already split out and normalized (store.Untagged
// when the spec carried no @tag segment).
type AddRequest struct {
	ConsumerDir string
	Package     string
	Tag         string
	RegistryURL string
	Token       string
}

// ParseSpec splits a `name` or `name@tag` spec. Scoped package names
// (`@acme/a`) carry their own leading '@', so only an '@' at index > 0 is
// treated as the tag separator.
func ParseSpec(spec string) (name, tag string) {
	at := strings.LastIndex(spec, "@")
	if at <= 0 {
		return spec, ""
	}
	return spec[:at], spec[at+1:]
}

// Add is propagation-on-demand: it looks up the latest catalog entry for
// (pkg, tag), registers the consumer on first use, creates or refreshes
// the pin, rewrites the consumer's manifest, and installs.
func Add(ctx context.Context, cat *store.Catalog, paths store.Paths, req AddRequest, install Installer) (string, error) {
	rec, ok := cat.Published[store.PublishKey(req.Package, req.Tag)]
	if !ok {
		return "", pkgerrors.New(pkgerrors.UnknownTag, req.Package+"@"+req.Tag, nil)
	}

	canonical, err := store.CanonicalDir(req.ConsumerDir)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.InstallFailed, req.ConsumerDir, err)
	}
	manifestPath := canonical + "/package.json"

	existing, _ := pm.ReadManifest(canonical)
	section := "dependencies"
	if _, ok := existing.DevDependencies[req.Package]; ok {
		section = "devDependencies"
	}

	consumer, registered := cat.Consumers[canonical]
	kind := pm.Kind(consumer.Kind)
	if !registered {
		kind = pm.Detect(canonical)
		if err := registerConsumer(paths, canonical, kind, req.RegistryURL, req.Token); err != nil {
			return "", err
		}
		consumer = store.Consumer{Dir: canonical, Kind: string(kind), ConsumerHash: store.ConsumerHash(canonical)}
	}

	key := store.PinKey{Consumer: canonical, Package: req.Package, Tag: req.Tag}
	if _, exists := cat.Pins[key.String()]; !exists {
		consumer.Pins = append(consumer.Pins, key)
	}
	cat.Pins[key.String()] = store.Pin{Version: rec.Version, ManifestSection: section}
	cat.Consumers[canonical] = consumer

	if err := pm.SetDependency(manifestPath, section, req.Package, rec.Version); err != nil {
		return "", pkgerrors.New(pkgerrors.InstallFailed, canonical, err)
	}

	if err := install(ctx, kind, canonical); err != nil {
		log.ErrorErr(log.CatPropagate, "install failed after add", err, "consumer", canonical, "package", req.Package)
		return rec.Version, pkgerrors.New(pkgerrors.InstallFailed, canonical, err)
	}
	log.Info(log.CatPropagate, "added", "consumer", canonical, "package", req.Package, "tag", req.Tag, "version", rec.Version)
	return rec.Version, nil
}

// RmRequest is the `rm NAME` verb's parsed input.
type RmRequest struct {
	ConsumerDir string
	Package     string
}

// Rm removes every pin matching (consumer, package) regardless of tag,
// restores each dep to whatever the consumer's manifest held before
// pkglab's first `add` (or deletes it, if pkglab introduced it), and
// reinstalls. De-registers the consumer once its last pin is gone.
func Rm(ctx context.Context, cat *store.Catalog, paths store.Paths, req RmRequest, install Installer) error {
	canonical, err := store.CanonicalDir(req.ConsumerDir)
	if err != nil {
		return pkgerrors.New(pkgerrors.InstallFailed, req.ConsumerDir, err)
	}
	consumer, ok := cat.Consumers[canonical]
	if !ok {
		return pkgerrors.New(pkgerrors.UnknownPackage, req.Package, nil)
	}

	manifestPath := canonical + "/package.json"
	var remaining []store.PinKey
	var removedAny bool
	for _, pk := range consumer.Pins {
		if pk.Package != req.Package {
			remaining = append(remaining, pk)
			continue
		}
		removedAny = true
		delete(cat.Pins, pk.String())
		if err := restoreOriginalDependency(paths, consumer, manifestPath, req.Package); err != nil {
			return err
		}
	}
	if !removedAny {
		return pkgerrors.New(pkgerrors.UnknownPackage, req.Package, nil)
	}

	consumer.Pins = remaining
	if len(remaining) == 0 {
		delete(cat.Consumers, canonical)
		log.Info(log.CatPropagate, "consumer de-registered, no pins remain", "consumer", canonical)
	} else {
		cat.Consumers[canonical] = consumer
	}

	if err := install(ctx, pm.Kind(consumer.Kind), canonical); err != nil {
		return pkgerrors.New(pkgerrors.InstallFailed, canonical, err)
	}
	log.Info(log.CatPropagate, "removed", "consumer", canonical, "package", req.Package)
	return nil
}

// restoreOriginalDependency reads the consumer's first-registration
// manifest backup and restores pkg's pre-pkglab entry, or deletes the dep
// entirely if pkg was never present in that backup (pkglab introduced it).
func restoreOriginalDependency(paths store.Paths, consumer store.Consumer, manifestPath, pkg string) error {
	backupPath := paths.BackupDir(consumer.ConsumerHash) + "/package.json"
	original, err := pm.ReadManifest(backupDirFile(backupPath))
	if err != nil {
		// No backup on disk (shouldn't happen for a registered consumer,
		// but a missing backup is not grounds to refuse the removal): fall
		// back to deleting whichever section currently holds it.
		_ = pm.RemoveDependency(manifestPath, "dependencies", pkg)
		_ = pm.RemoveDependency(manifestPath, "devDependencies", pkg)
		return nil
	}

	if v, ok := original.Dependencies[pkg]; ok {
		return pm.SetDependency(manifestPath, "dependencies", pkg, v)
	}
	if v, ok := original.DevDependencies[pkg]; ok {
		return pm.SetDependency(manifestPath, "devDependencies", pkg, v)
	}
	if err := pm.RemoveDependency(manifestPath, "dependencies", pkg); err != nil {
		return err
	}
	return pm.RemoveDependency(manifestPath, "devDependencies", pkg)
}

// backupDirFile strips the trailing "/package.json" pm.ReadManifest
// re-appends, since ReadManifest takes a directory, not a file path.
func backupDirFile(manifestFilePath string) string {
	return strings.TrimSuffix(manifestFilePath, "/package.json")
}

// registerConsumer snapshots the consumer's manifest and lockfile into its
// backup directory and writes the fixed local dummy token into its
// package-manager config, scoped to the local registry host (§6).
func registerConsumer(paths store.Paths, consumerDir string, kind pm.Kind, registryURL, token string) error {
	hash := store.ConsumerHash(consumerDir)
	backupDir := paths.BackupDir(hash)

	if err := pm.BackupFile(consumerDir+"/package.json", backupDir+"/package.json"); err != nil {
		return pkgerrors.New(pkgerrors.InstallFailed, consumerDir, err)
	}
	if lockfile := pm.LockfileName(kind); lockfile != "" {
		if err := pm.BackupFile(consumerDir+"/"+lockfile, backupDir+"/"+lockfile); err != nil {
			return pkgerrors.New(pkgerrors.InstallFailed, consumerDir, err)
		}
	}
	if err := pm.WriteAuthToken(consumerDir, kind, registryURL, token); err != nil {
		return pkgerrors.New(pkgerrors.InstallFailed, consumerDir, err)
	}
	log.Info(log.CatPropagate, "registered consumer", "consumer", consumerDir, "kind", kind)
	return nil
}

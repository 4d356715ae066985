// Package store implements the State Store: the on-disk
// catalog of producer workspaces, consumer registrations, and published
// version pins, guarded end to end by a single advisory file lock.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/registry"
)

// schemaVersion is bumped whenever Catalog's on-disk shape changes
// incompatibly; a mismatched catalog.json refuses to load rather than
// silently misinterpreting older data.
const schemaVersion = 1

// Untagged is the reserved tag name for the default publish channel (§3).
const Untagged = "(untagged)"

// PublishRecord is the latest known state for one (package, tag).
type PublishRecord struct {
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	N           int       `json:"n"`
	PublishedAt time.Time `json:"publishedAt"`
}

// PinKey identifies a (consumer, package, tag) pin.
type PinKey struct {
	Consumer string `json:"consumer"` // canonicalized absolute path
	Package  string `json:"package"`
	Tag      string `json:"tag"`
}

// Pin records which version a consumer tracks for (package, tag) and
// which manifest section it was found in, so rewrites and eventual
// removal land back in the right place.
type Pin struct {
	Version         string `json:"version"`
	ManifestSection string `json:"manifestSection"`
}

// Consumer is a registered consumer repository.
type Consumer struct {
	Dir          string   `json:"dir"` // canonicalized absolute path, also the map key
	Kind         string   `json:"kind"`
	ConsumerHash string   `json:"consumerHash"`
	Pins         []PinKey `json:"pins"`
}

// Producer is a registered producer workspace.
type Producer struct {
	Dir            string   `json:"dir"`
	DiscoveryGlobs []string `json:"discoveryGlobs"`
}

// Catalog is the full persisted state.
type Catalog struct {
	SchemaVersion int                      `json:"schemaVersion"`
	Registry      registry.Info            `json:"registry"`
	Producers     map[string]Producer      `json:"producers"` // keyed by dir
	Consumers     map[string]Consumer      `json:"consumers"` // keyed by dir
	Pins          map[string]Pin           `json:"pins"`      // keyed by PinKey.String()
	Published     map[string]PublishRecord `json:"published"` // keyed by PublishKey(pkg, tag)
}

// String renders k as the Pins map key.
func (k PinKey) String() string {
	return k.Consumer + "\x1f" + k.Package + "\x1f" + k.Tag
}

// PublishKey renders the Published map key for (pkg, tag).
func PublishKey(pkg, tag string) string {
	return pkg + "\x1f" + tag
}

// SplitPublishKey inverts PublishKey, for callers (e.g. `pkg ls`) that
// only have the map key and need the (pkg, tag) pair back.
func SplitPublishKey(key string) (pkg, tag string) {
	i := strings.IndexByte(key, '\x1f')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

func empty() Catalog {
	return Catalog{
		SchemaVersion: schemaVersion,
		Producers:     map[string]Producer{},
		Consumers:     map[string]Consumer{},
		Pins:          map[string]Pin{},
		Published:     map[string]PublishRecord{},
	}
}

// Paths are the fixed layout under $HOME/.pkglab.
type Paths struct {
	Root     string
	Catalog  string
	Lock     string
	Registry string
	Backups  string
}

// DefaultPaths resolves the layout rooted at home (pass "" to use
// os.UserHomeDir).
func DefaultPaths(home string) (Paths, error) {
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		home = h
	}
	root := filepath.Join(home, ".pkglab")
	return Paths{
		Root:     root,
		Catalog:  filepath.Join(root, "catalog.json"),
		Lock:     filepath.Join(root, "catalog.lock"),
		Registry: filepath.Join(root, "registry"),
		Backups:  filepath.Join(root, "backups"),
	}, nil
}

// load reads and parses catalog.json, returning a fresh empty Catalog if
// it does not yet exist.
func load(path string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixed catalog path under the user's home
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		return Catalog{}, pkgerrors.New(pkgerrors.StateCorrupt, path, err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, pkgerrors.New(pkgerrors.StateCorrupt, path, err)
	}
	if c.SchemaVersion != schemaVersion {
		return Catalog{}, pkgerrors.Newf(pkgerrors.StateCorrupt, path, "schema version %d, want %d", c.SchemaVersion, schemaVersion)
	}
	return c, nil
}

// save writes c to path atomically.
func save(path string, c Catalog) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return pm.WriteFileAtomic(path, data)
}

// WithLock opens the catalog under an exclusive lock, lets fn mutate it,
// and persists the result — the single read-modify-write critical section
// every mutation needs. fn's returned error aborts
// the write (the lock is still released).
func WithLock(paths Paths, lockTimeout time.Duration, fn func(*Catalog) error) error {
	if err := os.MkdirAll(paths.Root, 0755); err != nil {
		return pkgerrors.New(pkgerrors.StateCorrupt, paths.Root, err)
	}
	unlock, err := acquireExclusive(paths.Lock, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := load(paths.Catalog)
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	if err := save(paths.Catalog, c); err != nil {
		return pkgerrors.New(pkgerrors.StateCorrupt, paths.Catalog, err)
	}
	log.Debug(log.CatStore, "catalog committed", "path", paths.Catalog)
	return nil
}

// WithReadLock opens the catalog under a shared lock for read-only
// commands (pkg ls, repos ls) so they never block a concurrent mutation
// longer than necessary and never see a half-written file.
func WithReadLock(paths Paths, lockTimeout time.Duration, fn func(Catalog) error) error {
	unlock, err := acquireShared(paths.Lock, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := load(paths.Catalog)
	if err != nil {
		return err
	}
	return fn(c)
}

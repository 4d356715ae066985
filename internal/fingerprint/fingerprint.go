// Package fingerprint implements the Fingerprinter: a
// content-addressed digest of a package's tracked files, folded with the
// already-computed fingerprints of its in-workspace dependencies, used to
// decide whether a package has changed since it was last published at a
// given tag.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/sumdb/dirhash"

	"github.com/pkglab/pkglab/internal/cache"
	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pm"
)

// Dep is one in-workspace dependency's name paired with its own
// already-computed fingerprint, folded into the parent's digest.
type Dep struct {
	Name        string
	Fingerprint string
}

// memo caches content hashes for a single CLI invocation: long enough that
// a dry-run immediately followed by the real publish reuses every hash.
var memo = cache.New[string, string]("fingerprint", cache.DefaultExpiration, cache.DefaultCleanupInterval)

// Compute returns the package's fingerprint: 16 bytes, presented as 32
// lowercase hex characters, folding the package's own file content with its
// sorted-by-name in-workspace dependency fingerprints.
//
// dirhash.Hash1 is the same algorithm `go mod download` uses to verify
// module content — it hashes a caller-supplied file list (not a directory
// walk) so the ignore-rule decision stays entirely with pm.TrackedFiles,
// per the change-detection/unchanged-no-publish invariant.
func Compute(dir string, deps []Dep) (string, error) {
	files, err := pm.TrackedFiles(dir)
	if err != nil {
		return "", err
	}

	memoKey := dir + "\x00" + memoFingerprintKey(files, dir)
	if v, ok := memo.Get(memoKey); ok {
		log.Debug(log.CatFingerprint, "memoized hit", "dir", dir)
		return foldWithDeps(v, deps), nil
	}

	contentHash, err := dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, name)) //nolint:gosec // G304: name comes from a tracked-files walk under dir
	})
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", dir, err)
	}

	memo.Set(memoKey, contentHash)
	log.Debug(log.CatFingerprint, "computed content hash", "dir", dir, "files", len(files))
	return foldWithDeps(contentHash, deps), nil
}

// foldWithDeps combines contentHash with deps sorted by name, matching
// the "(depName, depFingerprint) pairs sorted by depName" rule.
func foldWithDeps(contentHash string, deps []Dep) string {
	sorted := make([]Dep, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	h.Write([]byte(contentHash))
	for _, d := range sorted {
		h.Write([]byte("\x00"))
		h.Write([]byte(d.Name))
		h.Write([]byte("\x00"))
		h.Write([]byte(d.Fingerprint))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// memoFingerprintKey is a cheap stand-in key for the memo cache: the file
// list plus each file's mtime, so an untouched tree hits the cache without
// re-reading file contents, while any edit (including git checkout) busts
// it. This is distinct from the Hash1 digest itself, which always reads
// content and is what actually gets stored/returned.
func memoFingerprintKey(files []string, dir string) string {
	h := sha256.New()
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(dir, rel))
		if err != nil {
			continue
		}
		h.Write([]byte(rel))
		h.Write([]byte(info.ModTime().String()))
		h.Write([]byte(fmt.Sprint(info.Size())))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Changed reports whether current differs from previous, the catalog
// fingerprint recorded for this (package, tag). An empty previous (no prior
// publish) always counts as changed.
func Changed(previous, current string) bool {
	return previous == "" || previous != current
}

package pm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Manifest is a read view of a package manifest. Arbitrary third-party
// fields are never modeled here — they live only in the raw bytes and are
// preserved by round-tripping through gjson/sjson rather than through a
// marshaled struct, since manifests carry arbitrary third-party fields that must round-trip untouched.
type Manifest struct {
	Name            string
	Version         string
	Dependencies    map[string]string
	DevDependencies map[string]string
}

// ReadManifest parses the known fields out of dir's package.json.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json")) //nolint:gosec // G304: fixed filename within a known package directory
	if err != nil {
		return Manifest{}, err
	}
	root := gjson.ParseBytes(data)
	return Manifest{
		Name:            root.Get("name").String(),
		Version:         root.Get("version").String(),
		Dependencies:    toMap(root.Get("dependencies")),
		DevDependencies: toMap(root.Get("devDependencies")),
	}, nil
}

func toMap(r gjson.Result) map[string]string {
	if !r.Exists() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

// SetVersion rewrites the top-level "version" field in place, preserving
// every other field's order and formatting.
func SetVersion(manifestPath, version string) error {
	return mutate(manifestPath, func(data []byte) ([]byte, error) {
		return sjson.SetBytes(data, "version", version)
	})
}

// SetDependency writes name=version into the given section
// ("dependencies" or "devDependencies"), creating the section if absent.
func SetDependency(manifestPath, section, name, version string) error {
	path := fmt.Sprintf("%s.%s", section, sjsonEscape(name))
	return mutate(manifestPath, func(data []byte) ([]byte, error) {
		return sjson.SetBytes(data, path, version)
	})
}

// RemoveDependency deletes name from the given section. A no-op if absent.
func RemoveDependency(manifestPath, section, name string) error {
	path := fmt.Sprintf("%s.%s", section, sjsonEscape(name))
	return mutate(manifestPath, func(data []byte) ([]byte, error) {
		return sjson.DeleteBytes(data, path)
	})
}

// sjsonEscape escapes the characters sjson gives a path meaning in package
// names: '.' (e.g. "lodash.merge") and the '@' that starts a scoped name
// (e.g. "@acme/a"), so sjson treats the whole string as one key, not a
// nested or modifier path.
func sjsonEscape(name string) string {
	return strings.NewReplacer(".", "\\.", "@", "\\@").Replace(name)
}

// mutate reads manifestPath, applies fn to its bytes, and writes the
// result back atomically, preserving a trailing newline if the original
// had one.
func mutate(manifestPath string, fn func([]byte) ([]byte, error)) error {
	data, err := os.ReadFile(manifestPath) //nolint:gosec // G304: manifestPath is caller-controlled, within a known package directory
	if err != nil {
		return err
	}
	trailingNewline := len(data) > 0 && data[len(data)-1] == '\n'

	out, err := fn(data)
	if err != nil {
		return err
	}
	if trailingNewline && (len(out) == 0 || out[len(out)-1] != '\n') {
		out = append(out, '\n')
	}
	return WriteFileAtomic(manifestPath, out)
}

// WriteFileAtomic writes data to path via a sibling temp file, fsync, and
// rename — the same pattern the teacher's config.SaveViews uses to avoid
// ever leaving a manifest half-written.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pkglab-manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	info, statErr := os.Stat(path)
	if statErr == nil {
		_ = os.Chmod(tmpPath, info.Mode())
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// BackupFile copies path's current contents to backupPath, overwriting
// any previous backup (used for manifest/lockfile backups before a
// rewrite).
func BackupFile(path, backupPath string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path/backupPath are caller-controlled, within known directories
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(backupPath, data, 0644)
}

// RestoreFile overwrites path with backupPath's contents. A no-op if
// backupPath does not exist (nothing was ever backed up, e.g. the file
// did not exist before pkglab touched it).
func RestoreFile(backupPath, path string) error {
	data, err := os.ReadFile(backupPath) //nolint:gosec // G304: path/backupPath are caller-controlled, within known directories
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

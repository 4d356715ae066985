package repos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkglab/pkglab/internal/pm"
	"github.com/pkglab/pkglab/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestList_EmptyAndPopulated(t *testing.T) {
	require.Empty(t, List(store.Catalog{}))

	cat := store.Catalog{Consumers: map[string]store.Consumer{
		"/b": {Dir: "/b"},
		"/a": {Dir: "/a"},
	}}
	require.Equal(t, []string{"/a", "/b"}, List(cat))
}

func TestCheck_FindsPkglabArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "left-pad", "package.json"), `{"name":"left-pad","version":"1.0.0"}`)
	writeFile(t, filepath.Join(dir, "node_modules", "@acme", "a", "package.json"), `{"name":"@acme/a","version":"0.0.0-pkglab.3"}`)

	found, err := Check(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"@acme/a@0.0.0-pkglab.3"}, found)
}

func TestCheck_NoNodeModules(t *testing.T) {
	dir := t.TempDir()
	found, err := Check(dir)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestReset_RestoresBackupAndDeregisters(t *testing.T) {
	root := t.TempDir()
	paths := store.Paths{Backups: filepath.Join(root, "backups")}
	consumerDir := filepath.Join(root, "consumer")

	writeFile(t, filepath.Join(consumerDir, "package.json"), `{"name":"c","dependencies":{"@acme/a":"0.0.0-pkglab.2"}}`)
	hash := store.ConsumerHash(consumerDir)
	require.NoError(t, pm.BackupFile(filepath.Join(consumerDir, "package.json"), filepath.Join(paths.BackupDir(hash), "package.json")))

	// Simulate pkglab having rewritten the manifest after backup.
	writeFile(t, filepath.Join(consumerDir, "package.json"), `{"name":"c","dependencies":{"@acme/a":"0.0.0-pkglab.3"}}`)

	cat := &store.Catalog{
		Consumers: map[string]store.Consumer{
			consumerDir: {Dir: consumerDir, Kind: "npm", ConsumerHash: hash,
				Pins: []store.PinKey{{Consumer: consumerDir, Package: "@acme/a", Tag: "(untagged)"}}},
		},
		Pins: map[string]store.Pin{
			store.PinKey{Consumer: consumerDir, Package: "@acme/a", Tag: "(untagged)"}.String(): {Version: "0.0.0-pkglab.3"},
		},
	}

	require.NoError(t, Reset(cat, paths, consumerDir))

	m, err := pm.ReadManifest(consumerDir)
	require.NoError(t, err)
	require.Equal(t, "0.0.0-pkglab.2", m.Dependencies["@acme/a"])
	require.NotContains(t, cat.Consumers, consumerDir)
	require.Empty(t, cat.Pins)
}

func TestResetAll_SkipsMissingDirectory(t *testing.T) {
	root := t.TempDir()
	paths := store.Paths{Backups: filepath.Join(root, "backups")}
	missingDir := filepath.Join(root, "gone")

	cat := &store.Catalog{
		Consumers: map[string]store.Consumer{missingDir: {Dir: missingDir, ConsumerHash: "x"}},
		Pins:      map[string]store.Pin{},
	}

	outcomes := ResetAll(cat, paths)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Skipped)
	require.Contains(t, cat.Consumers, missingDir, "a skipped reset must not silently de-register")
}

func TestResetStale_RemovesMissingRegistrations(t *testing.T) {
	root := t.TempDir()
	missingDir := filepath.Join(root, "gone")

	cat := &store.Catalog{
		Consumers: map[string]store.Consumer{missingDir: {Dir: missingDir}},
		Pins:      map[string]store.Pin{},
	}

	outcomes := ResetStale(cat)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Removed)
	require.NotContains(t, cat.Consumers, missingDir)
}

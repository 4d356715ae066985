package pm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackedFiles_ExcludesDefaultsAndHonorsIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	write("package.json", `{"name":"a"}`)
	write("index.js", "1")
	write("node_modules/dep/index.js", "1")
	write(".git/HEAD", "1")
	write("dist/bundle.js", "1")
	write(".pkglabignore", "dist\n# comment\n")

	files, err := TrackedFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{".pkglabignore", "index.js", "package.json"}, files)
}

func TestTrackedFiles_EmptyIgnoreFileIsFine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0644))

	files, err := TrackedFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"package.json"}, files)
}

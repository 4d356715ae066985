package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCompute_DeterministicForSameContent(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, dirA, "index.js", "module.exports = 1;\n")
	writeFile(t, dirB, "index.js", "module.exports = 1;\n")

	fa, err := Compute(dirA, nil)
	require.NoError(t, err)
	fb, err := Compute(dirB, nil)
	require.NoError(t, err)

	require.Equal(t, fa, fb)
	require.Len(t, fa, 32)
}

func TestCompute_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.js", "module.exports = 1;\n")
	f1, err := Compute(dir, nil)
	require.NoError(t, err)

	writeFile(t, dir, "index.js", "module.exports = 2;\n")
	f2, err := Compute(dir, nil)
	require.NoError(t, err)

	require.NotEqual(t, f1, f2)
}

func TestCompute_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.js", "module.exports = 1;\n")
	base, err := Compute(dir, nil)
	require.NoError(t, err)

	writeFile(t, dir, "node_modules/dep/index.js", "ignored")
	after, err := Compute(dir, nil)
	require.NoError(t, err)

	require.Equal(t, base, after)
}

func TestCompute_DepsAffectFingerprintAndAreOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.js", "module.exports = 1;\n")

	f1, err := Compute(dir, []Dep{{Name: "a", Fingerprint: "111"}, {Name: "b", Fingerprint: "222"}})
	require.NoError(t, err)
	f2, err := Compute(dir, []Dep{{Name: "b", Fingerprint: "222"}, {Name: "a", Fingerprint: "111"}})
	require.NoError(t, err)
	require.Equal(t, f1, f2, "fold order must not depend on caller-supplied slice order")

	noDeps, err := Compute(dir, nil)
	require.NoError(t, err)
	require.NotEqual(t, f1, noDeps)
}

func TestChanged(t *testing.T) {
	require.True(t, Changed("", "abc"))
	require.True(t, Changed("abc", "def"))
	require.False(t, Changed("abc", "abc"))
}

package pm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect_ProbesInSpecificityOrder(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, KindNPM, Detect(dir), "no lockfile defaults to npm")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}"), 0644))
	require.Equal(t, KindNPM, Detect(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "yarn.lock"), []byte(""), 0644))
	require.Equal(t, KindYarn, Detect(dir), "yarn.lock takes priority over a stray package-lock.json")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pnpm-lock.yaml"), []byte(""), 0644))
	require.Equal(t, KindPNPM, Detect(dir), "pnpm-lock.yaml is the most specific and wins")
}

func TestLockfileName(t *testing.T) {
	require.Equal(t, "package-lock.json", LockfileName(KindNPM))
	require.Equal(t, "yarn.lock", LockfileName(KindYarn))
	require.Equal(t, "", LockfileName(Kind("unknown")))
}

func TestWriteAuthToken_IsIdempotentAndScopedToHost(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteAuthToken(dir, KindNPM, "http://127.0.0.1:4873", "tok123"))
	data, err := os.ReadFile(filepath.Join(dir, ".npmrc"))
	require.NoError(t, err)
	require.Equal(t, "//127.0.0.1:4873/:_authToken=tok123\n", string(data))

	// Calling again must not duplicate the line.
	require.NoError(t, WriteAuthToken(dir, KindNPM, "http://127.0.0.1:4873", "tok123"))
	data, err = os.ReadFile(filepath.Join(dir, ".npmrc"))
	require.NoError(t, err)
	require.Equal(t, "//127.0.0.1:4873/:_authToken=tok123\n", string(data))
}

func TestWriteAuthToken_NoopWithoutRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAuthToken(dir, KindNPM, "", "tok123"))
	_, err := os.ReadFile(filepath.Join(dir, ".npmrc"))
	require.True(t, os.IsNotExist(err), "no registry running yet, nothing should be written")
}

func TestPack_ProducesTarballOfTrackedFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"a","version":"1.0.0"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("module.exports = 1;"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "dep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep", "index.js"), []byte("x"), 0644))

	tarball, err := Pack(dir)
	require.NoError(t, err)
	defer os.Remove(tarball)

	info, err := os.Stat(tarball)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

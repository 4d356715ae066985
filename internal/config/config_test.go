package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.Equal(t, "127.0.0.1", d.RegistryHost)
	require.Equal(t, 4873, d.RegistryPort)
	require.Equal(t, "(untagged)", d.DefaultTag)
	require.Equal(t, "verdaccio", d.RegistryCommand)
}

func TestLoad_WritesDefaultConfigOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, used, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(".pkglab", "config.yaml"), filepath.FromSlash(used))
	require.Equal(t, Defaults().RegistryPort, cfg.RegistryPort)

	_, statErr := os.Stat(filepath.Join(dir, ".pkglab", "config.yaml"))
	require.NoError(t, statErr)
}

func TestLoad_ExplicitPathOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry_port: 9999\n"), 0644))

	cfg, used, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, 9999, cfg.RegistryPort)
	require.Equal(t, Defaults().RegistryHost, cfg.RegistryHost, "unset fields keep their default")
}

func TestWriteDefaultConfig_KeysMatchLoadsExpectedNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// The written keys must use the same snake_case names Load's mapstructure
	// tags expect, or a hand-edited override would silently be ignored.
	require.Contains(t, string(data), "registry_host:")
	require.Contains(t, string(data), "registry_port:")
	require.NotContains(t, string(data), "registryhost:")

	cfg, used, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, Defaults(), cfg)
}

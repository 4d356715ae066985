// Package config provides configuration types, defaults, and loading for pkglab.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pkglab/pkglab/internal/log"

	viperlib "github.com/spf13/viper"
)

// DummyToken is the fixed local credential written into a consumer's
// package-manager config on first `add` (§6): pkglab's registry is a
// single-user local sandbox, so there is nothing to authenticate beyond
// "this request came from this machine."
const DummyToken = "pkglab-local-token"

// Config holds process-wide tunables. Most behavior in pkglab is driven by
// the persisted Catalog (internal/store), not this file — Config covers
// only what must be known before the catalog is opened.
type Config struct {
	// RegistryHost/RegistryPort select the bind address for the local
	// registry daemon. A RegistryPortEnd of 0 (or any value not above
	// RegistryPort) disables range scanning and uses RegistryPort exactly.
	RegistryHost    string `mapstructure:"registry_host" yaml:"registry_host"`
	RegistryPort    int    `mapstructure:"registry_port" yaml:"registry_port"`
	RegistryPortEnd int    `mapstructure:"registry_port_range_end" yaml:"registry_port_range_end"`
	// RegistryCommand/RegistryArgs launch the external registry daemon
	// (pkglab only supervises it, never bundles it). "{{port}}"
	// and "{{configDir}}" in an arg are substituted at launch time.
	RegistryCommand    string   `mapstructure:"registry_command" yaml:"registry_command"`
	RegistryArgs       []string `mapstructure:"registry_args" yaml:"registry_args"`
	HealthTimeoutMS    int      `mapstructure:"health_timeout_ms" yaml:"health_timeout_ms"`
	HealthPollMS       int      `mapstructure:"health_poll_ms" yaml:"health_poll_ms"`
	StopTimeoutMS      int      `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	LockTimeoutSec     int      `mapstructure:"lock_timeout_sec" yaml:"lock_timeout_sec"`
	PublishConcurrency int      `mapstructure:"publish_concurrency" yaml:"publish_concurrency"`
	DefaultTag         string   `mapstructure:"default_tag" yaml:"default_tag"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RegistryHost:       "127.0.0.1",
		RegistryPort:       4873,
		RegistryPortEnd:    4973,
		RegistryCommand:    "verdaccio",
		RegistryArgs:       []string{"--config", "{{configDir}}/config.yaml", "--listen", "{{port}}"},
		HealthTimeoutMS:    10_000,
		HealthPollMS:       100,
		StopTimeoutMS:      5_000,
		LockTimeoutSec:     30,
		PublishConcurrency: 4,
		DefaultTag:         "(untagged)",
	}
}

// Load resolves configuration the same way the teacher's CLI root command
// does: an explicit --config path wins; otherwise ./.pkglab/config.yaml is
// preferred over ~/.config/pkglab/config.yaml; if neither exists, a default
// file is written at ./.pkglab/config.yaml so subsequent runs are stable.
func Load(explicitPath string) (Config, string, error) {
	v := viperlib.NewWithOptions(viperlib.KeyDelimiter("::"))
	defaults := Defaults()
	v.SetDefault("registry_host", defaults.RegistryHost)
	v.SetDefault("registry_port", defaults.RegistryPort)
	v.SetDefault("registry_port_range_end", defaults.RegistryPortEnd)
	v.SetDefault("registry_command", defaults.RegistryCommand)
	v.SetDefault("registry_args", defaults.RegistryArgs)
	v.SetDefault("health_timeout_ms", defaults.HealthTimeoutMS)
	v.SetDefault("health_poll_ms", defaults.HealthPollMS)
	v.SetDefault("stop_timeout_ms", defaults.StopTimeoutMS)
	v.SetDefault("lock_timeout_sec", defaults.LockTimeoutSec)
	v.SetDefault("publish_concurrency", defaults.PublishConcurrency)
	v.SetDefault("default_tag", defaults.DefaultTag)

	switch {
	case explicitPath != "":
		v.SetConfigFile(explicitPath)
	default:
		if _, err := os.Stat(".pkglab/config.yaml"); err == nil {
			v.SetConfigFile(".pkglab/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "pkglab"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viperlib.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := ".pkglab/config.yaml"
			if writeErr := WriteDefaultConfig(defaultPath); writeErr == nil {
				v.SetConfigFile(defaultPath)
				if rerr := v.ReadInConfig(); rerr == nil {
					used = defaultPath
				}
			}
		} else {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("parsing config: %w", err)
	}
	if used != "" {
		log.Info(log.CatConfig, "config loaded", "path", used)
	}
	return cfg, used, nil
}

// WriteDefaultConfig materializes the default configuration as YAML at path.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

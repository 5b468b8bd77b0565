// Package config loads the clickcheck configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultMetadataURL   = "https://search.apps.ubuntu.com/api/v1/click-metadata"
	DefaultEnumerator    = "click-installed"
	DefaultFrameworksDir = "/usr/share/click/frameworks"
	DefaultCheckInterval = 24 * time.Hour
	DefaultLogLevel      = "info"
)

// Environment overrides, applied after the file.
const (
	EnvMetadataURL       = "CLICKCHECK_METADATA_URL"
	EnvTokenURL          = "CLICKCHECK_TOKEN_URL"
	EnvIgnoreCredentials = "CLICKCHECK_IGNORE_CREDENTIALS"
)

// fileNames are tried in order when no config path is given.
var fileNames = []string{"config.yaml", "config.yml", "config.toml", "config.json"}

// Config is the resolved clickcheck configuration.
type Config struct {
	MetadataURL    string
	TokenURL       string
	Enumerator     string
	EnumeratorArgs []string
	// Frameworks overrides discovery from FrameworksDir when set.
	Frameworks    []string
	FrameworksDir string
	// Architecture is derived from the running binary when empty.
	Architecture      string
	CheckInterval     time.Duration
	IgnoreCredentials bool
	CredentialsFile   string
	// DBPath is empty for the default database location.
	DBPath         string
	LogLevel       string
	RequestTimeout time.Duration

	// Path is the file the configuration was read from, if any.
	Path string
}

// Dir returns the clickcheck config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/clickcheck if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "clickcheck"), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		MetadataURL:   DefaultMetadataURL,
		Enumerator:    DefaultEnumerator,
		FrameworksDir: DefaultFrameworksDir,
		CheckInterval: DefaultCheckInterval,
		LogLevel:      DefaultLogLevel,
	}
}

// Load reads the configuration at path. An empty path looks for
// config.{yaml,yml,toml,json} in Dir(); finding none yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = findFile(dir)
	}

	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			raw, err := parse(content, detectFormat(path, content))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if err := raw.apply(cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			cfg.Path = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = filepath.Join(dir, "credentials.yaml")
	}

	return cfg, nil
}

func findFile(dir string) string {
	for _, name := range fileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvMetadataURL); v != "" {
		cfg.MetadataURL = v
	}
	if v := os.Getenv(EnvTokenURL); v != "" {
		cfg.TokenURL = v
	}
	if v, ok := os.LookupEnv(EnvIgnoreCredentials); ok {
		cfg.IgnoreCredentials = truthy(v)
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

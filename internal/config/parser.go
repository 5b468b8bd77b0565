package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a config file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	return sniffFormat(content)
}

// sniffFormat guesses the format of an extensionless file.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "=") || strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}

	return FormatUnknown
}

// rawConfig mirrors the file keys. Durations are strings like "24h".
type rawConfig struct {
	MetadataURL       string   `yaml:"metadata_url" toml:"metadata_url" json:"metadata_url"`
	TokenURL          string   `yaml:"token_url" toml:"token_url" json:"token_url"`
	Enumerator        string   `yaml:"enumerator" toml:"enumerator" json:"enumerator"`
	EnumeratorArgs    []string `yaml:"enumerator_args" toml:"enumerator_args" json:"enumerator_args"`
	Frameworks        []string `yaml:"frameworks" toml:"frameworks" json:"frameworks"`
	FrameworksDir     string   `yaml:"frameworks_dir" toml:"frameworks_dir" json:"frameworks_dir"`
	Architecture      string   `yaml:"architecture" toml:"architecture" json:"architecture"`
	CheckInterval     string   `yaml:"check_interval" toml:"check_interval" json:"check_interval"`
	IgnoreCredentials *bool    `yaml:"ignore_credentials" toml:"ignore_credentials" json:"ignore_credentials"`
	CredentialsFile   string   `yaml:"credentials_file" toml:"credentials_file" json:"credentials_file"`
	DBPath            string   `yaml:"db_path" toml:"db_path" json:"db_path"`
	LogLevel          string   `yaml:"log_level" toml:"log_level" json:"log_level"`
	RequestTimeout    string   `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// parse parses the content according to the specified format.
func parse(content []byte, format Format) (*rawConfig, error) {
	content = expandEnvVars(content)

	var raw rawConfig

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	return &raw, nil
}

// apply overlays the keys present in the file onto cfg.
func (r *rawConfig) apply(cfg *Config) error {
	setString(&cfg.MetadataURL, r.MetadataURL)
	setString(&cfg.TokenURL, r.TokenURL)
	setString(&cfg.Enumerator, r.Enumerator)
	setString(&cfg.FrameworksDir, r.FrameworksDir)
	setString(&cfg.Architecture, r.Architecture)
	setString(&cfg.CredentialsFile, r.CredentialsFile)
	setString(&cfg.DBPath, r.DBPath)
	setString(&cfg.LogLevel, r.LogLevel)

	if len(r.EnumeratorArgs) > 0 {
		cfg.EnumeratorArgs = r.EnumeratorArgs
	}
	if len(r.Frameworks) > 0 {
		cfg.Frameworks = r.Frameworks
	}
	if r.IgnoreCredentials != nil {
		cfg.IgnoreCredentials = *r.IgnoreCredentials
	}

	if r.CheckInterval != "" {
		d, err := time.ParseDuration(r.CheckInterval)
		if err != nil {
			return fmt.Errorf("check_interval: %w", err)
		}
		cfg.CheckInterval = d
	}
	if r.RequestTimeout != "" {
		d, err := time.ParseDuration(r.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

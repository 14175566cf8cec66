// Package config loads the SequencerConfig from a TOML file using the
// same library the teacher's go.mod already carried for configuration.
package config

import (
	"github.com/BurntSushi/toml"
)

// ConfigError reports a missing required configuration field. Per
// §7/§9 it aborts process startup; it is never recoverable at runtime.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string { return "config: missing required field: " + e.Field }

// LogConfig groups the fields forwarded to pkg/log.Configure.
type LogConfig struct {
	Level    string `toml:"level"`
	FilePath string `toml:"file_path"`
}

// SequencerConfig is the full process configuration: {path, client_url,
// batch_size, server_port, upstream_url} per §6, plus the ambient
// logging section.
type SequencerConfig struct {
	Path        string    `toml:"path"`
	ClientURL   string    `toml:"client_url"`
	BatchSize   int       `toml:"batch_size"`
	ServerPort  uint16    `toml:"server_port"`
	UpstreamURL string    `toml:"upstream_url"`
	Log         LogConfig `toml:"log"`
}

// Load decodes a TOML file at filePath and validates the required
// fields are present.
func Load(filePath string) (*SequencerConfig, error) {
	var cfg SequencerConfig
	if _, err := toml.DecodeFile(filePath, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every field required for bootstrap is present.
func (c *SequencerConfig) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "path"}
	}
	if c.ClientURL == "" {
		return &ConfigError{Field: "client_url"}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Field: "batch_size"}
	}
	if c.ServerPort == 0 {
		return &ConfigError{Field: "server_port"}
	}
	if c.UpstreamURL == "" {
		return &ConfigError{Field: "upstream_url"}
	}
	return nil
}

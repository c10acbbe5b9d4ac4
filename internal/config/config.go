// =============================================================================
// CONFIGURATION - YAML-BACKED SERVER SETTINGS
// =============================================================================
//
// One YAML file configures the whole server. Every field has a working
// default, so an empty file (or no file at all) starts a usable single-node
// registry with data under ./data.
//
// Example:
//
//   node_id: 1
//   listen_addr: ":8081"
//   data_dir: "/var/lib/goregistry"
//   sequencer:
//     max_write_attempts: 50
//     retry_backoff: 20ms
//   registry:
//     default_compatibility: BACKWARD
//   logging:
//     level: info
//     format: json
//   metrics:
//     enabled: true
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// NodeID identifies this node in record provenance. Must be unique
	// across writers sharing a registry log.
	NodeID int32 `yaml:"node_id"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir is where partition logs live.
	DataDir string `yaml:"data_dir"`

	Sequencer SequencerConfig `yaml:"sequencer"`
	Registry  RegistryConfig  `yaml:"registry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SequencerConfig tunes the write path.
type SequencerConfig struct {
	// Topic and Partition name the backing log partition.
	Topic     string `yaml:"topic"`
	Partition int    `yaml:"partition"`

	// MaxWriteAttempts caps conflict retries per write; 0 retries until the
	// request context expires.
	MaxWriteAttempts int `yaml:"max_write_attempts"`

	// RetryBackoff is the base delay between conflict retries.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// FetchChunk bounds entries per catch-up fetch.
	FetchChunk int `yaml:"fetch_chunk"`
}

// RegistryConfig tunes registry semantics.
type RegistryConfig struct {
	// DefaultCompatibility is the global level before any config write.
	DefaultCompatibility string `yaml:"default_compatibility"`
}

// LoggingConfig tunes structured logging.
type LoggingConfig struct {
	// Level: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format: json | text.
	Format string `yaml:"format"`
}

// MetricsConfig tunes Prometheus exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration a bare server starts with.
func Default() Config {
	return Config{
		NodeID:     0,
		ListenAddr: ":8081",
		DataDir:    "data",
		Sequencer: SequencerConfig{
			Topic:            "__registry",
			Partition:        0,
			MaxWriteAttempts: 50,
			RetryBackoff:     20 * time.Millisecond,
			FetchChunk:       500,
		},
		Registry: RegistryConfig{
			DefaultCompatibility: "BACKWARD",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

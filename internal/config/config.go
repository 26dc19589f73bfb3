// Package config loads DURAFLOW's process configuration from a YAML file,
// falling back to documented defaults for any key the file omits — and for
// the file itself, if it doesn't exist.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBlockIntervalMillis = 200
	DefaultBlockQueueSize      = 10
	DefaultAppendSupport       = false
)

// Source describes one remote event source a PollingIngestor polls.
type Source struct {
	Name          string `yaml:"name"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Config is the full set of keys a DURAFLOW process reads at startup.
type Config struct {
	ReceiverID       string   `yaml:"receiver_id"`
	BlockIntervalMs  int      `yaml:"block_interval_ms"`
	BlockQueueSize   int      `yaml:"block_queue_size"`
	AppendSupport    bool     `yaml:"append_support"`
	Parallelism      int      `yaml:"parallelism"`
	MaxBatchSize     int      `yaml:"max_batch_size"`
	WALPath          string   `yaml:"wal_path"`
	MetricsAddr      string   `yaml:"metrics_addr"`
	Sources          []Source `yaml:"sources"`
}

// BlockInterval is BlockIntervalMs as a time.Duration.
func (c Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMs) * time.Millisecond
}

// defaults returns a Config pre-populated with every documented default.
func defaults() Config {
	return Config{
		ReceiverID:      "duraflow",
		BlockIntervalMs: DefaultBlockIntervalMillis,
		BlockQueueSize:  DefaultBlockQueueSize,
		AppendSupport:   DefaultAppendSupport,
		Parallelism:     1,
		MaxBatchSize:    100,
		WALPath:         "duraflow.wal",
		MetricsAddr:     ":9090",
	}
}

// Load reads path as YAML into a Config seeded with defaults, so any key the
// file omits keeps its default value. A missing file is not an error — it
// yields the all-defaults Config, matching the reference loader's
// warn-and-use-defaults behavior for a missing config file.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	if cfg.BlockIntervalMs <= 0 {
		cfg.BlockIntervalMs = DefaultBlockIntervalMillis
	}
	if cfg.BlockQueueSize <= 0 {
		cfg.BlockQueueSize = DefaultBlockQueueSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg, nil
}

// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package config defines the TOML configuration of a state database.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/c2h5oh/datasize"
)

// Storage backends selectable by name.
const (
	BackendMemory  = "memory"
	BackendLevelDb = "leveldb"
	BackendPebble  = "pebble"
	BackendBadger  = "badger"
	BackendSqlite  = "sqlite"
)

// Backends lists all supported storage backends.
var Backends = []string{BackendMemory, BackendLevelDb, BackendPebble, BackendBadger, BackendSqlite}

// Config is the configuration of a state database.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Tree    TreeConfig    `toml:"tree"`
	Pruning PruningConfig `toml:"pruning"`
	Metrics MetricsConfig `toml:"metrics"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig selects and configures the key/value backend.
type StorageConfig struct {
	// Backend is one of "memory", "leveldb", "pebble", "badger" or "sqlite".
	Backend string `toml:"backend"`

	// Directory holds the database files. Unused by the memory backend.
	Directory string `toml:"directory"`

	// Sync forces every commit to be synced to disk.
	Sync bool `toml:"sync"`

	// BlockCache is the size of the LevelDB block cache.
	BlockCache datasize.ByteSize `toml:"block_cache"`
}

// TreeConfig tunes the commitment tree.
type TreeConfig struct {
	// NodeCache is the memory budget of the node cache. Zero selects a size
	// based on the available physical memory.
	NodeCache datasize.ByteSize `toml:"node_cache"`

	// ParallelDepth is the number of top tree levels updated in parallel.
	ParallelDepth int `toml:"parallel_depth"`

	// ParallelThreshold is the minimum number of updates of a sub-tree for
	// its children to be updated in parallel.
	ParallelThreshold int `toml:"parallel_threshold"`
}

// PruningConfig controls the removal of old versions.
type PruningConfig struct {
	// KeepRecent is the number of recent versions retained by background
	// pruning. Zero disables background pruning.
	KeepRecent uint64 `toml:"keep_recent"`

	// ChunkSize is the number of deletions applied per batch while pruning.
	ChunkSize int `toml:"chunk_size"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled determines whether metrics collection is active.
	Enabled bool `toml:"enabled"`

	// Namespace is the Prometheus metrics namespace prefix.
	Namespace string `toml:"namespace"`

	// ListenAddr is the address to serve metrics on (e.g., ":9090").
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `toml:"level"`

	// Format is the log output format ("console" or "json").
	Format string `toml:"format"`

	// Output is the log output destination ("stdout", "stderr", or a file path).
	Output string `toml:"output"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    BackendLevelDb,
			Directory:  "data/state",
			Sync:       false,
			BlockCache: 64 * datasize.MB,
		},
		Tree: TreeConfig{
			NodeCache:         0,
			ParallelDepth:     4,
			ParallelThreshold: 256,
		},
		Pruning: PruningConfig{
			KeepRecent: 0,
			ChunkSize:  10_000,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Namespace:  "jellyfish",
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// LoadConfig loads configuration from a TOML file.
// Missing values are filled with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validation errors.
var (
	ErrInvalidBackend           = errors.New("storage backend must be one of: memory, leveldb, pebble, badger, sqlite")
	ErrEmptyDirectory           = errors.New("storage directory cannot be empty for persistent backends")
	ErrInvalidParallelDepth     = errors.New("tree parallel_depth must be non-negative")
	ErrInvalidParallelThreshold = errors.New("tree parallel_threshold must be non-negative")
	ErrInvalidChunkSize         = errors.New("pruning chunk_size must be positive")
	ErrEmptyMetricsNamespace    = errors.New("metrics namespace cannot be empty when enabled")
	ErrEmptyMetricsListenAddr   = errors.New("metrics listen_addr cannot be empty when enabled")
	ErrInvalidLogLevel          = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("log format must be 'console' or 'json'")
	ErrEmptyLogOutput           = errors.New("log output cannot be empty")
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Tree.Validate(); err != nil {
		return fmt.Errorf("tree config: %w", err)
	}
	if err := c.Pruning.Validate(); err != nil {
		return fmt.Errorf("pruning config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate checks the storage configuration for errors.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendLevelDb, BackendPebble, BackendBadger, BackendSqlite:
		if c.Directory == "" {
			return ErrEmptyDirectory
		}
		return nil
	}
	return ErrInvalidBackend
}

// Validate checks the tree configuration for errors.
func (c *TreeConfig) Validate() error {
	if c.ParallelDepth < 0 {
		return ErrInvalidParallelDepth
	}
	if c.ParallelThreshold < 0 {
		return ErrInvalidParallelThreshold
	}
	return nil
}

// Validate checks the pruning configuration for errors.
func (c *PruningConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	return nil
}

// Validate checks the metrics configuration for errors.
func (c *MetricsConfig) Validate() error {
	if c.Enabled {
		if c.Namespace == "" {
			return ErrEmptyMetricsNamespace
		}
		if c.ListenAddr == "" {
			return ErrEmptyMetricsListenAddr
		}
	}
	return nil
}

// Validate checks the logging configuration for errors.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return ErrInvalidLogLevel
	}

	switch c.Format {
	case "console", "json":
		// Valid formats
	default:
		return ErrInvalidLogFormat
	}

	if c.Output == "" {
		return ErrEmptyLogOutput
	}

	return nil
}

// WriteConfigFile writes the configuration to a TOML file.
func WriteConfigFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

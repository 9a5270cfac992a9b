// Package config defines the skyshard configuration, loaded from YAML
// with documented defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete skyshard configuration.
type Config struct {
	// DataDir is the dataset root. One subdirectory per catalog
	// namespace, one shard file per coarse pixel.
	DataDir string `yaml:"data_dir"`

	// Catalogs is the namespace filter: "*" for every catalog found
	// under DataDir, or a comma-separated allow-list.
	Catalogs string `yaml:"catalogs"`

	// Pixels defines the two HEALPix resolutions of the sharding scheme.
	Pixels PixelConfig `yaml:"pixels"`

	// Reload configures the periodic datastore reload.
	Reload ReloadConfig `yaml:"reload"`

	// Compression configures shard file compression.
	Compression CompressionConfig `yaml:"compression"`

	// Server configures the HTTP query frontend.
	Server ServerConfig `yaml:"server"`
}

// PixelConfig defines the two HEALPix resolutions. Both use the nested
// ordering scheme; the coarse resolution shards partitions, the fine
// one positions individual sources.
type PixelConfig struct {
	// CoarseNside is the partition-boundary resolution.
	CoarseNside int `yaml:"coarse_nside"`

	// FineNside is the per-source resolution.
	FineNside int `yaml:"fine_nside"`
}

// ReloadConfig configures the periodic datastore reload.
type ReloadConfig struct {
	// Interval between reload checks. The reload itself is a no-op
	// unless the freshness marker under DataDir has changed.
	Interval time.Duration `yaml:"interval"`
}

// CompressionConfig configures shard file compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// ServerConfig configures the HTTP query frontend.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// EnableSQL exposes the DuckDB inspection endpoint.
	EnableSQL bool `yaml:"enable_sql"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with documented defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  "./data",
		Catalogs: "*",
		Pixels: PixelConfig{
			CoarseNside: 16,
			FineNside:   4096,
		},
		Reload: ReloadConfig{
			Interval: 30 * time.Second,
		},
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
		},
		Server: ServerConfig{
			Listen:          "0.0.0.0:8610",
			EnableSQL:       false,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for
// fields the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// CatalogFilter returns the parsed namespace allow-list, or nil when
// every catalog is admitted.
func (c *Config) CatalogFilter() []string {
	if c.Catalogs == "" || c.Catalogs == "*" {
		return nil
	}
	parts := strings.Split(c.Catalogs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureDirectories creates the dataset root if it does not exist.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

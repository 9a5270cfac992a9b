package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /srv/skyshard
catalogs: lotss
reload:
  interval: 2m
server:
  enable_sql: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "/srv/skyshard" || cfg.Catalogs != "lotss" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Reload.Interval != 2*time.Minute {
		t.Errorf("reload.interval = %v", cfg.Reload.Interval)
	}
	if !cfg.Server.EnableSQL {
		t.Error("server.enable_sql not applied")
	}
	// Omitted fields keep their defaults.
	if cfg.Pixels.CoarseNside != 16 || cfg.Pixels.FineNside != 4096 {
		t.Errorf("pixel defaults lost: %+v", cfg.Pixels)
	}
	if cfg.Compression.Algorithm != "zstd" || cfg.Compression.Level != 3 {
		t.Errorf("compression defaults lost: %+v", cfg.Compression)
	}
	if cfg.Server.Listen != "0.0.0.0:8610" {
		t.Errorf("server.listen default lost: %q", cfg.Server.Listen)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [not: closed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, true},
		{"coarse not power of two", func(c *Config) { c.Pixels.CoarseNside = 17 }, true},
		{"fine not power of two", func(c *Config) { c.Pixels.FineNside = 4097 }, true},
		{"fine below coarse", func(c *Config) { c.Pixels.FineNside = 8 }, true},
		{"fine equals coarse", func(c *Config) { c.Pixels.FineNside = 16 }, true},
		{"zero reload interval", func(c *Config) { c.Reload.Interval = 0 }, true},
		{"unknown compression", func(c *Config) { c.Compression.Algorithm = "brotli" }, true},
		{"zstd level out of range", func(c *Config) { c.Compression.Level = 23 }, true},
		{"no compression is allowed", func(c *Config) { c.Compression = CompressionConfig{Algorithm: "none"} }, false},
		{"missing listen address", func(c *Config) { c.Server.Listen = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogFilter(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"*", nil},
		{"", nil},
		{"lotss", []string{"lotss"}},
		{"lotss,nvss", []string{"lotss", "nvss"}},
		{" lotss , nvss ,", []string{"lotss", "nvss"}},
	}
	for _, tt := range tests {
		cfg := &Config{Catalogs: tt.in}
		if got := cfg.CatalogFilter(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CatalogFilter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

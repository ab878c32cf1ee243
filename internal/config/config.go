// Package config provides unified configuration for the tablo CLI and
// snapshot store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the CLI and snapshot store.
type Config struct {
	// DataDir is the base directory for all local data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Cache configuration.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Storage configuration.
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// CacheConfig holds table cache configuration.
type CacheConfig struct {
	// Enabled controls whether reads go through the table cache.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxEntries is the number of tables the cache may hold.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/tablo",
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 32,
		},
		Storage: StorageConfig{
			Type: "local",
		},
	}
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tablo"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "objects")
	}
}

// WorkDir returns the scratch directory for snapshot building.
func (c *Config) WorkDir() string {
	return filepath.Join(c.DataDir, "work")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment when one
// exists; a missing file is not an error.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// LoadFromEnv overlays configuration from environment variables with
// the TABLO_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TABLO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TABLO_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TABLO_CACHE_MAX_ENTRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cache.MaxEntries)
	}
	if v := os.Getenv("TABLO_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TABLO_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TABLO_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("TABLO_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("TABLO_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.WorkDir()}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

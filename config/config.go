// Package config loads the sink configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/CefBoud/monsink/types"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// defaults applied to fields left empty in the YAML file
const (
	DefaultFlushIntervalMs = 1000
	DefaultFormat          = "csv"
	DefaultCompression     = "none"
	DefaultStorageType     = "local"
	DefaultLogLevel        = "info"
	DefaultGuardFile       = ".monsink/offsets.db"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Default returns a configuration with every optional field set.
func Default() types.Configuration {
	return types.Configuration{
		FlushIntervalMs: DefaultFlushIntervalMs,
		Format:          DefaultFormat,
		Compression:     DefaultCompression,
		LogLevel:        DefaultLogLevel,
		Storage:         types.StorageConfig{Type: DefaultStorageType},
	}
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (types.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Configuration{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of Default and validates it.
func Parse(data []byte) (types.Configuration, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.Configuration{}, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return types.Configuration{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills fields that were explicitly emptied.
func ApplyDefaults(cfg *types.Configuration) {
	if cfg.FlushIntervalMs == 0 {
		cfg.FlushIntervalMs = DefaultFlushIntervalMs
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Compression == "" {
		cfg.Compression = DefaultCompression
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = DefaultStorageType
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.GuardPath == "" && cfg.Storage.Type == "local" && cfg.RootDir != "" {
		cfg.GuardPath = filepath.Join(cfg.RootDir, DefaultGuardFile)
	}
}

// Validate checks the validate tags of cfg.
func Validate(cfg types.Configuration) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Package config loads and validates the govmfs configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (applied by the caller after Load)
//  2. Environment variables (GOVMFS_*)
//  3. Configuration file (YAML)
//  4. Default values
//
// The volume section follows a type-plus-section pattern: Type selects the
// accessor implementation and only the matching type-specific section is
// decoded, each by its own factory in factories.go.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete govmfs configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Volume selects and configures the volume accessor.
	Volume VolumeConfig `mapstructure:"volume"`

	// Catalog configures the optional badger-backed datastore catalog.
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// VolumeConfig selects the volume accessor implementation.
//
// Only the section matching Type is used.
type VolumeConfig struct {
	// Type is the accessor implementation: file or s3.
	Type string `mapstructure:"type" validate:"required,oneof=file s3"`

	// File configures the local file/device accessor.
	// Only used when Type = "file".
	File map[string]any `mapstructure:"file"`

	// S3 configures the object storage accessor.
	// Only used when Type = "s3".
	S3 map[string]any `mapstructure:"s3"`
}

// CatalogConfig configures the datastore catalog database.
type CatalogConfig struct {
	// Path is the badger database directory. Empty disables the catalog.
	Path string `mapstructure:"path"`

	// InMemory keeps the catalog in memory, mainly for tests.
	InMemory bool `mapstructure:"in_memory"`
}

// Load reads configuration from the given file (optional), the environment
// and defaults, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GOVMFS_ prefix with underscores, e.g.
	// GOVMFS_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("GOVMFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("govmfs")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine, defaults and env carry the load.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

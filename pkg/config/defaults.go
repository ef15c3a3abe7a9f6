package config

import "strings"

// ApplyDefaults fills in missing values and normalizes fields that accept
// several spellings. It never overwrites a value the user set.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Volume.Type == "" {
		cfg.Volume.Type = "file"
	}
}

// GetDefaultConfig returns a fully defaulted configuration, used when no
// sources are present at all.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

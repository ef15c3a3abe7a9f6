package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# govmfs configuration file
#
# Values can be overridden with GOVMFS_* environment variables, e.g.
# GOVMFS_LOGGING_LEVEL=DEBUG.

`

// initConfig is the serialization shape of the generated file. The runtime
// Config uses mapstructure tags for viper; this mirror carries the yaml
// tags and the documented volume sections.
type initConfig struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Volume struct {
		Type string `yaml:"type"`
		File struct {
			Extents []string `yaml:"extents"`
		} `yaml:"file"`
	} `yaml:"volume"`
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
}

// InitConfig writes a commented default configuration file and returns its
// path. It refuses to overwrite an existing file unless force is set.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = "govmfs.yaml"
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating config directory: %w", err)
		}
	}

	defaults := GetDefaultConfig()
	var out initConfig
	out.Logging.Level = defaults.Logging.Level
	out.Volume.Type = defaults.Volume.Type
	out.Volume.File.Extents = []string{"/vmfs/devices/disks/naa.XXXXXXXX:1"}

	body, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), body...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

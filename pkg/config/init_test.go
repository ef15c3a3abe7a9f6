package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govmfs.yaml")

	got, err := InitConfig(path, false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected path %s, got %s", path, got)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	for _, section := range []string{"# govmfs configuration file", "logging:", "volume:", "catalog:"} {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	// The generated file is valid YAML with the defaults filled in.
	var cfg initConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Volume.Type != "file" {
		t.Errorf("Expected default volume type file, got %q", cfg.Volume.Type)
	}

	// And it loads back through the normal path.
	if _, err := Load(path); err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govmfs.yaml")

	if _, err := InitConfig(path, false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if _, err := InitConfig(path, false); err == nil {
		t.Fatal("Expected error when config already exists")
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govmfs.yaml")

	if _, err := InitConfig(path, false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if _, err := InitConfig(path, true); err != nil {
		t.Fatalf("Force overwrite failed: %v", err)
	}
}

func TestInitConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "govmfs.yaml")

	if _, err := InitConfig(path, false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

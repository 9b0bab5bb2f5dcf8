// Package config loads tool configuration: where the memory root lives
// and how the process logs. File values merge over built-in defaults;
// environment variables override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the tool-level configuration for a memkeep process.
type Config struct {
	// MemoryDir is the memory root directory, relative to the project
	// directory unless absolute.
	MemoryDir string `yaml:"memory_dir,omitempty"`
	// ProjectName overrides the name recorded in a freshly provisioned
	// root document.
	ProjectName string `yaml:"project_name,omitempty"`

	Log struct {
		File   string `yaml:"file,omitempty"`
		Pretty bool   `yaml:"pretty,omitempty"`
	} `yaml:"log,omitempty"`

	Search struct {
		// DefaultLimit caps search results when the caller passes none.
		DefaultLimit int `yaml:"default_limit,omitempty"`
	} `yaml:"search,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var cfg Config
	cfg.MemoryDir = ".memkeep"
	cfg.Search.DefaultLimit = 20
	return cfg
}

// Path returns the config file path, honoring MEMKEEP_CONFIG_PATH.
func Path() string {
	if envPath := os.Getenv("MEMKEEP_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.memkeep.yaml"
	}
	return filepath.Join(homeDir, ".memkeep", "config.yaml")
}

// Load reads the config file at path and merges it over the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(expandPath(path)) //#nosec G304 -- intentional config read
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("MEMKEEP_MEMORY_DIR"); dir != "" {
		cfg.MemoryDir = dir
	}
	if name := os.Getenv("MEMKEEP_PROJECT_NAME"); name != "" {
		cfg.ProjectName = name
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

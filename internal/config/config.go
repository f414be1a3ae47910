// Package config reads the optional .regraft.yaml project file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up in the checked
// directory.
const FileName = ".regraft.yaml"

// Config represents the optional .regraft.yaml configuration.
type Config struct {
	Languages []string              `yaml:"languages,omitempty"`
	Exclude   []string              `yaml:"exclude,omitempty"`
	Parallel  int                   `yaml:"parallel,omitempty"`
	Rules     map[string]RuleConfig `yaml:"rules,omitempty"`
}

// RuleConfig tunes one named rule.
type RuleConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Severity string `yaml:"severity,omitempty"`
}

// LoadOptional reads .regraft.yaml from dir if present. A missing file
// yields an empty config, not an error.
func LoadOptional(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Excluded reports whether path matches any exclude glob. Globs match
// against the path's base name and against the slash path itself.
func (c *Config) Excluded(path string) bool {
	for _, pattern := range c.Exclude {
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.ToSlash(path)); ok {
			return true
		}
	}
	return false
}

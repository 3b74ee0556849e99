package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from an optional YAML
// file, then environment variables override the file.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// RulesDir is the directory holding .jsonc rule set documents.
	RulesDir string `yaml:"rules_dir"`

	// WatchRules reloads documents from RulesDir when they change.
	WatchRules bool `yaml:"watch_rules"`

	// DatabaseURL enables loading rule sets from PostgreSQL instead of
	// RulesDir. Empty means files only.
	DatabaseURL string `yaml:"database_url"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaultConfig() Config {
	return Config{
		Addr:            ":8080",
		RulesDir:        "dsl",
		WatchRules:      true,
		ShutdownTimeout: 30 * time.Second,
	}
}

// LoadConfig reads path if it exists and applies environment overrides.
// An empty path skips the file entirely.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("RULES_DIR"); dir != "" {
		cfg.RulesDir = dir
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	return cfg, nil
}

// Package config loads the named database configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeEmbedded is the only supported open mode
const TypeEmbedded = "embedded"

// Environment overrides
const (
	EnvStorageRoot     = "GRAPHTX_STORAGE_ROOT"
	EnvDefaultDatabase = "GRAPHTX_DEFAULT_DATABASE"
	EnvLogLevel        = "LOG_LEVEL"
)

// Config is the top-level configuration
type Config struct {
	StorageRoot     string               `yaml:"storage_root" validate:"required"`
	DefaultDatabase string               `yaml:"default_database" validate:"omitempty,dbname"`
	LogLevel        string               `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	MetricsAddr     string               `yaml:"metrics_addr"`
	Databases       map[string]*Database `yaml:"databases" validate:"dive,keys,dbname,endkeys,required"`
}

// Database configures one named database. Type and PropertiesURL are
// checked when the database is opened so that they fail with their own
// error kinds.
type Database struct {
	Type             string            `yaml:"type"`
	Path             string            `yaml:"path"`
	PropertiesURL    string            `yaml:"properties_url"`
	Settings         map[string]string `yaml:"settings"`
	ExceptionHandler string            `yaml:"exception_handler"`
	Default          bool              `yaml:"default"`
}

// Default returns a configuration with no databases
func Default() *Config {
	return &Config{
		StorageRoot: "./data",
		LogLevel:    "info",
		Databases:   make(map[string]*Database),
	}
}

// Load reads, overrides from the environment and validates a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults, applies environment overrides
// and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]*Database)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvStorageRoot)); v != "" {
		c.StorageRoot = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDefaultDatabase)); v != "" {
		c.DefaultDatabase = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// Names returns the configured database names in sorted order
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabasePath returns the storage path of name, defaulting to a per-name
// directory under the storage root
func (c *Config) DatabasePath(name string) string {
	if db, ok := c.Databases[name]; ok && db != nil && db.Path != "" {
		return db.Path
	}
	return filepath.Join(c.StorageRoot, "graph", name)
}

// ResolveDefault names the default database: the explicit
// default_database, else the single database flagged default, else the
// only configured database.
func (c *Config) ResolveDefault() (string, bool) {
	if c.DefaultDatabase != "" {
		if _, ok := c.Databases[c.DefaultDatabase]; ok {
			return c.DefaultDatabase, true
		}
		return "", false
	}

	var flagged []string
	for _, name := range c.Names() {
		if c.Databases[name].Default {
			flagged = append(flagged, name)
		}
	}
	if len(flagged) == 1 {
		return flagged[0], true
	}
	if len(flagged) == 0 && len(c.Databases) == 1 {
		return c.Names()[0], true
	}
	return "", false
}

// TypeOf returns the configured open mode, defaulting to embedded
func (d *Database) TypeOf() string {
	if d.Type == "" {
		return TypeEmbedded
	}
	return strings.ToLower(d.Type)
}

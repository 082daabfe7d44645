package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	Auth        AuthConfig        `yaml:"auth"`
	Worker      WorkerConfig      `yaml:"worker"`
	Log         LogConfig         `yaml:"log"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	EntityTypes []EntityType      `yaml:"entity_types"`
	// Plugins lists the sync plugins attached to the event bus, in order.
	Plugins []string `yaml:"plugins"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DefinitionsConfig locates synchronization definitions.
// Path may be a single YAML file or a directory of *.yaml files.
type DefinitionsConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	ManagedImportEnabled  bool     `yaml:"managed_import_enabled"`
	ManagedImportInterval Duration `yaml:"managed_import_interval"`
	// Syncs restricts the coordinator to these synchronization IDs.
	// Empty means every synchronization with a managed import_list.
	Syncs []string `yaml:"syncs"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObjectStoreConfig contains S3-compatible storage settings for the
// objectstore remote backend. Empty endpoint disables the backend.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only
	SecretKey string `yaml:"-"` // env-only
	UseSSL    bool   `yaml:"use_ssl"`
}

// EntityType declares the schema of a local entity type.
type EntityType struct {
	Type    string        `yaml:"type"`
	Bundles []string      `yaml:"bundles"`
	Fields  []EntityField `yaml:"fields"`
}

// EntityField declares one field of a local entity type.
type EntityField struct {
	Name     string `yaml:"name"`
	Multiple bool   `yaml:"multiple"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SYNCBRIDGE_CONFIG_PATH", "config/syncbridge.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadLocal loads configuration for CLI commands that work on the local
// database directly. The API key is not required. An empty path falls back
// to SYNCBRIDGE_CONFIG_PATH, where a missing file is not an error.
func LoadLocal(path string) (*Config, error) {
	cfg := newDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := loadYAMLFile(cfg, getEnv("SYNCBRIDGE_CONFIG_PATH", "config/syncbridge.yaml")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validateLocal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(5 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/syncbridge.db",
		},
		Definitions: DefinitionsConfig{
			Path: "config/syncs",
		},
		Worker: WorkerConfig{
			ManagedImportEnabled:  true,
			ManagedImportInterval: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
			UseSSL: true,
		},
		Plugins: []string{"managed", "writeback"},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("SYNCBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SYNCBRIDGE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SYNCBRIDGE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SYNCBRIDGE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("SYNCBRIDGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Definitions
	if v := os.Getenv("SYNCBRIDGE_DEFINITIONS_PATH"); v != "" {
		cfg.Definitions.Path = v
	}

	// Auth
	if v := os.Getenv("SYNCBRIDGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Worker
	if v := os.Getenv("SYNCBRIDGE_MANAGED_IMPORT_ENABLED"); v != "" {
		cfg.Worker.ManagedImportEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SYNCBRIDGE_MANAGED_IMPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ManagedImportInterval = Duration(d)
		}
	}
	if v := os.Getenv("SYNCBRIDGE_MANAGED_IMPORT_SYNCS"); v != "" {
		cfg.Worker.Syncs = splitList(v)
	}

	// Log
	if v := os.Getenv("SYNCBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYNCBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Plugins
	if v := os.Getenv("SYNCBRIDGE_PLUGINS"); v != "" {
		cfg.Plugins = splitList(v)
	}

	// Object store
	if v := os.Getenv("SYNCBRIDGE_S3_ENDPOINT"); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("SYNCBRIDGE_S3_REGION"); v != "" {
		cfg.ObjectStore.Region = v
	}
	if v := os.Getenv("SYNCBRIDGE_S3_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("SYNCBRIDGE_S3_SECRET_KEY"); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("SYNCBRIDGE_S3_USE_SSL"); v != "" {
		cfg.ObjectStore.UseSSL = v == "true" || v == "1"
	}
}

// validate checks that required configuration values are set.
// In dev mode (SYNCBRIDGE_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if err := c.validateLocal(); err != nil {
		return err
	}

	if os.Getenv("SYNCBRIDGE_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("SYNCBRIDGE_API_KEY is required")
	}
	return nil
}

// validateLocal checks the settings needed to run operations without serving
// the API.
func (c *Config) validateLocal() error {
	if err := c.validateEntityTypes(); err != nil {
		return err
	}
	if c.Worker.ManagedImportEnabled && c.Worker.ManagedImportInterval <= 0 {
		return errors.New("worker.managed_import_interval must be positive")
	}
	return nil
}

func (c *Config) validateEntityTypes() error {
	seen := make(map[string]bool, len(c.EntityTypes))
	for i, et := range c.EntityTypes {
		if et.Type == "" {
			return fmt.Errorf("entity_types[%d]: type is required", i)
		}
		if seen[et.Type] {
			return fmt.Errorf("entity_types[%d]: duplicate type %q", i, et.Type)
		}
		seen[et.Type] = true

		fields := make(map[string]bool, len(et.Fields))
		for j, f := range et.Fields {
			if f.Name == "" {
				return fmt.Errorf("entity_types[%d].fields[%d]: name is required", i, j)
			}
			if fields[f.Name] {
				return fmt.Errorf("entity_types[%d]: duplicate field %q", i, f.Name)
			}
			fields[f.Name] = true
		}
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

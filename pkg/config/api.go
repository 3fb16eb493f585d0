package config

import "fmt"

const (
	// DefaultAPIListen is the default API listen address.
	DefaultAPIListen = ":8080"

	// DefaultIndexInterval is the default interval between index scans.
	DefaultIndexInterval = "5m"

	// DefaultIndexConcurrency is the default number of reports indexed in
	// parallel per scan.
	DefaultIndexConcurrency = 4

	// DefaultRequestsPerMinute is the default per-IP rate limit.
	DefaultRequestsPerMinute = 120
)

// APIConfig contains all report API server configuration.
type APIConfig struct {
	Server   APIServerConfig   `yaml:"server" mapstructure:"server"`
	Database APIDatabaseConfig `yaml:"database" mapstructure:"database"`
	Storage  APIStorageConfig  `yaml:"storage" mapstructure:"storage"`
	Indexing APIIndexingConfig `yaml:"indexing,omitempty" mapstructure:"indexing"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// APIStorageConfig locates the rendered report files the server exposes.
// Each discovery path maps a URL prefix name to a results directory
// produced by an analysis run.
type APIStorageConfig struct {
	DiscoveryPaths map[string]string `yaml:"discovery_paths" mapstructure:"discovery_paths"`
}

// APIIndexingConfig configures the background indexing service that scans
// the discovery paths and maintains a queryable report index.
type APIIndexingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Interval    string `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// applyDefaults sets default values for unspecified API options.
func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultAPIListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "./buildgauge.db"
	}

	if c.Indexing.Interval == "" {
		c.Indexing.Interval = DefaultIndexInterval
	}

	if c.Indexing.Concurrency == 0 {
		c.Indexing.Concurrency = DefaultIndexConcurrency
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute == 0 {
		c.Server.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
}

// Validate checks the API configuration for errors.
func (c *APIConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("api.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.Host == "" {
		return fmt.Errorf("api.database.postgres.host is required")
	}

	if len(c.Storage.DiscoveryPaths) == 0 {
		return fmt.Errorf("api.storage.discovery_paths must list at least one path")
	}

	for name, path := range c.Storage.DiscoveryPaths {
		if name == "" || path == "" {
			return fmt.Errorf("api.storage.discovery_paths entries must have a name and a path")
		}
	}

	return nil
}

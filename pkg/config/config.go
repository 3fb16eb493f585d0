// Package config loads and validates the buildgauge configuration from a
// YAML file, with environment-variable overrides under the BUILDGAUGE_
// prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for analysis results.
	DefaultResultsDir = "./results"

	// DefaultExtraSamples is the default number of additional builds
	// sampled per configuration.
	DefaultExtraSamples = 5

	// DefaultConcurrency is the default number of configurations analyzed
	// in parallel.
	DefaultConcurrency = 4

	// DefaultPageSize is the default test-occurrence page size.
	DefaultPageSize = 100
)

// Config is the root configuration for buildgauge.
type Config struct {
	Global   GlobalConfig    `yaml:"global" mapstructure:"global"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Analysis AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Upload   *S3UploadConfig `yaml:"upload,omitempty" mapstructure:"upload"`
	API      *APIConfig      `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level" mapstructure:"log_level"`
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
}

// ServerConfig contains the build-server connection settings.
type ServerConfig struct {
	URL               string  `yaml:"url" mapstructure:"url"`
	Token             string  `yaml:"token" mapstructure:"token"`
	Timeout           string  `yaml:"timeout,omitempty" mapstructure:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
	PageSize          int     `yaml:"page_size,omitempty" mapstructure:"page_size"`
}

// AnalysisConfig contains analysis settings.
type AnalysisConfig struct {
	// Configurations lists the build configuration IDs to analyze.
	Configurations []string `yaml:"configurations" mapstructure:"configurations"`

	// ExtraSamples is how many builds beyond the most recent one are
	// sampled per configuration.
	ExtraSamples int `yaml:"extra_samples,omitempty" mapstructure:"extra_samples"`

	// Concurrency bounds parallel configuration processing.
	Concurrency int `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// S3UploadConfig contains S3 settings for uploading result directories.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// Load reads and parses a configuration file from the given path.
// Environment variables override file values: BUILDGAUGE_SERVER_TOKEN
// overrides server.token.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BUILDGAUGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults double as key registrations so AutomaticEnv can override
	// keys that are absent from the file.
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.results_dir", DefaultResultsDir)
	v.SetDefault("server.url", "")
	v.SetDefault("server.token", "")
	v.SetDefault("server.timeout", "")
	v.SetDefault("server.page_size", DefaultPageSize)
	v.SetDefault("analysis.extra_samples", DefaultExtraSamples)
	v.SetDefault("analysis.concurrency", DefaultConcurrency)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options
// that viper defaults cannot reach (nested optional sections).
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.ResultsDir == "" {
		c.Global.ResultsDir = DefaultResultsDir
	}

	if c.Server.PageSize == 0 {
		c.Server.PageSize = DefaultPageSize
	}

	if c.Analysis.ExtraSamples == 0 {
		c.Analysis.ExtraSamples = DefaultExtraSamples
	}

	if c.Analysis.Concurrency == 0 {
		c.Analysis.Concurrency = DefaultConcurrency
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}

	if len(c.Analysis.Configurations) == 0 {
		return fmt.Errorf("at least one build configuration must be listed")
	}

	seen := make(map[string]struct{}, len(c.Analysis.Configurations))

	for i, id := range c.Analysis.Configurations {
		if id == "" {
			return fmt.Errorf("configuration %d: id is required", i)
		}

		if _, exists := seen[id]; exists {
			return fmt.Errorf("configuration %d: duplicate id %q", i, id)
		}

		seen[id] = struct{}{}
	}

	if c.Upload != nil && c.Upload.Enabled && c.Upload.Bucket == "" {
		return fmt.Errorf("upload.bucket is required when upload is enabled")
	}

	if c.Global.ResultsDir != "" {
		dir := filepath.Dir(c.Global.ResultsDir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return err
		}
	}

	return nil
}

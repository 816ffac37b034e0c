package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"packt-downloader/model"
)

const DefaultBaseURL = "https://services.packtpub.com/"

// Config defines configuration for the packtdl CLI.
type Config struct {
	Email       string
	Password    string
	Directory   string
	Formats     []string
	Separate    bool
	Verbose     bool
	Quiet       bool
	Workers     int
	PageSize    int
	CacheURL    string
	StatePath   string
	HTTPTimeout time.Duration
	API         APIConfig
	Retry       RetryConfig
}

type APIConfig struct {
	BaseURL string
}

// RetryConfig bounds the transfer retry loop.
type RetryConfig struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Directory:   "media",
		Formats:     []string{"pdf", "mobi", "epub", "code"},
		Workers:     4,
		PageSize:    10,
		StatePath:   "state.db",
		HTTPTimeout: 60 * time.Second,
		API: APIConfig{
			BaseURL: DefaultBaseURL,
		},
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// fileConfig is the on-disk shape, shared by YAML and TOML.
type fileConfig struct {
	Email       string          `yaml:"email" toml:"email"`
	Password    string          `yaml:"password" toml:"password"`
	Directory   string          `yaml:"directory" toml:"directory"`
	Formats     string          `yaml:"formats" toml:"formats"`
	Separate    bool            `yaml:"separate" toml:"separate"`
	Verbose     bool            `yaml:"verbose" toml:"verbose"`
	Quiet       bool            `yaml:"quiet" toml:"quiet"`
	Workers     int             `yaml:"workers" toml:"workers"`
	PageSize    int             `yaml:"page_size" toml:"page_size"`
	CacheURL    string          `yaml:"cache_url" toml:"cache_url"`
	StatePath   string          `yaml:"state_path" toml:"state_path"`
	HTTPTimeout string          `yaml:"http_timeout" toml:"http_timeout"`
	API         fileAPIConfig   `yaml:"api" toml:"api"`
	Retry       fileRetryConfig `yaml:"retry" toml:"retry"`
}

type fileAPIConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

type fileRetryConfig struct {
	Attempts   int    `yaml:"attempts" toml:"attempts"`
	Backoff    string `yaml:"backoff" toml:"backoff"`
	MaxBackoff string `yaml:"max_backoff" toml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or TOML
// (.toml) file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file type: %s", filepath.Ext(path))
	}

	cfg := Default()
	override := Config{
		Email:     fc.Email,
		Password:  fc.Password,
		Directory: fc.Directory,
		Separate:  fc.Separate,
		Verbose:   fc.Verbose,
		Quiet:     fc.Quiet,
		Workers:   fc.Workers,
		PageSize:  fc.PageSize,
		CacheURL:  fc.CacheURL,
		StatePath: fc.StatePath,
		API:       APIConfig{BaseURL: fc.API.BaseURL},
		Retry:     RetryConfig{Attempts: fc.Retry.Attempts},
	}
	if fc.Formats != "" {
		override.Formats = model.ParseFormats(fc.Formats)
	}
	if override.HTTPTimeout, err = parseDuration("http_timeout", fc.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if override.Retry.Backoff, err = parseDuration("retry.backoff", fc.Retry.Backoff); err != nil {
		return Config{}, err
	}
	if override.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", fc.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}

	return cfg.Merge(override), nil
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PACKTDL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PACKTDL_EMAIL"); v != "" {
		c.Email = v
	}
	if v := os.Getenv("PACKTDL_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("PACKTDL_DIRECTORY"); v != "" {
		c.Directory = v
	}
	if v := os.Getenv("PACKTDL_FORMATS"); v != "" {
		c.Formats = model.ParseFormats(v)
	}
	if v := os.Getenv("PACKTDL_SEPARATE"); v != "" {
		c.Separate = v == "true" || v == "1"
	}
	if v := os.Getenv("PACKTDL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PACKTDL_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("PACKTDL_CACHE_URL"); v != "" {
		c.CacheURL = v
	}
	if v := os.Getenv("PACKTDL_STATE_PATH"); v != "" {
		c.StatePath = v
	}
	if v := os.Getenv("PACKTDL_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("PACKTDL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PACKTDL_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Email == "" || c.Password == "" {
		return errors.New("config: email and password are required")
	}
	if c.Verbose && c.Quiet {
		return errors.New("config: verbose and quiet cannot be used together")
	}
	if c.Directory == "" {
		return errors.New("config: directory is required")
	}
	if len(c.Formats) == 0 {
		return errors.New("config: at least one format is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if !strings.HasSuffix(c.API.BaseURL, "/") {
		return errors.New("config: api.base_url must end with /")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Email != "" {
		c.Email = override.Email
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if override.Directory != "" {
		c.Directory = override.Directory
	}
	if len(override.Formats) > 0 {
		c.Formats = override.Formats
	}
	if override.Separate {
		c.Separate = override.Separate
	}
	if override.Verbose {
		c.Verbose = override.Verbose
	}
	if override.Quiet {
		c.Quiet = override.Quiet
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.PageSize != 0 {
		c.PageSize = override.PageSize
	}
	if override.CacheURL != "" {
		c.CacheURL = override.CacheURL
	}
	if override.StatePath != "" {
		c.StatePath = override.StatePath
	}
	if override.HTTPTimeout != 0 {
		c.HTTPTimeout = override.HTTPTimeout
	}
	if override.API.BaseURL != "" {
		c.API.BaseURL = override.API.BaseURL
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a backup run
type Config struct {
	Tumblr     TumblrConfig     `yaml:"tumblr" json:"tumblr"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
}

// TumblrConfig holds the application credentials and remote endpoints
type TumblrConfig struct {
	ConsumerKey    string        `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret" json:"consumer_secret"`
	APIBaseURL     string        `yaml:"api_base_url" json:"api_base_url"`
	OAuthBaseURL   string        `yaml:"oauth_base_url" json:"oauth_base_url"`
	CallbackURL    string        `yaml:"callback_url" json:"callback_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// AuthConfig selects where the user's access token pair is persisted
type AuthConfig struct {
	TokenFile string `yaml:"token_file" json:"token_file"`
	Store     string `yaml:"store" json:"store"`
}

// StorageConfig locates the archive database and media tree
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
	MediaDir     string `yaml:"media_dir" json:"media_dir"`
	TagCacheSize int    `yaml:"tag_cache_size" json:"tag_cache_size"`
}

// PaginationConfig controls how post listings are walked
type PaginationConfig struct {
	PageSize  int           `yaml:"page_size" json:"page_size"`
	PageDelay time.Duration `yaml:"page_delay" json:"page_delay"`
}

// DownloadConfig controls the media download phase
type DownloadConfig struct {
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	ChunkSize         int           `yaml:"chunk_size" json:"chunk_size"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig controls retries of remote API calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig points at a node-exporter textfile; empty disables export
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

const (
	TokenStoreFile      = "file"
	TokenStoreKeyring   = "keyring"
	TokenStoreEncrypted = "encrypted"

	MaxConcurrency = 32
)

// DefaultConfig returns a Config with the stock settings
func DefaultConfig() *Config {
	return &Config{
		Tumblr: TumblrConfig{
			APIBaseURL:     "https://api.tumblr.com/v2",
			OAuthBaseURL:   "https://www.tumblr.com/oauth",
			CallbackURL:    "http://localhost:4567/callback",
			RequestTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile: ".tumblr_tokens",
			Store:     TokenStoreFile,
		},
		Storage: StorageConfig{
			DatabasePath: "tumblr_backup.db",
			MediaDir:     "media",
			TagCacheSize: 1024,
		},
		Pagination: PaginationConfig{
			PageSize:  20,
			PageDelay: 500 * time.Millisecond,
		},
		Download: DownloadConfig{
			Concurrency: 5,
			Timeout:     30 * time.Second,
			ChunkSize:   8192,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "backup.log",
			Format: "console",
		},
	}
}

// LoadFromEnv overrides settings from environment variables
func (c *Config) LoadFromEnv() error {
	setString(&c.Tumblr.ConsumerKey, "TUMBLR_CONSUMER_KEY")
	setString(&c.Tumblr.ConsumerSecret, "TUMBLR_CONSUMER_SECRET")
	setString(&c.Tumblr.APIBaseURL, "TUMBLR_API_BASE_URL")
	setString(&c.Auth.Store, "TUMBLR_BACKUP_TOKEN_STORE")
	setString(&c.Auth.TokenFile, "TUMBLR_BACKUP_TOKEN_FILE")
	setString(&c.Storage.DatabasePath, "TUMBLR_BACKUP_DB")
	setString(&c.Storage.MediaDir, "TUMBLR_BACKUP_MEDIA_DIR")
	setString(&c.Logging.Level, "TUMBLR_BACKUP_LOG_LEVEL")
	setString(&c.Logging.File, "TUMBLR_BACKUP_LOG_FILE")
	setString(&c.Metrics.Textfile, "TUMBLR_BACKUP_METRICS_TEXTFILE")

	var errs []error
	if v := os.Getenv("TUMBLR_BACKUP_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TUMBLR_BACKUP_CONCURRENCY: %w", err))
		} else {
			c.Download.Concurrency = n
		}
	}
	if v := os.Getenv("TUMBLR_BACKUP_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TUMBLR_BACKUP_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.Download.RequestsPerMinute = n
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// LoadFromFile loads YAML from path, or from the first standard location
// that exists when path is empty
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// FindConfigFile returns the first standard config location that exists
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".tumblr-backup.yaml",
		".tumblr-backup.yml",
		filepath.Join(home, ".config", "tumblr-backup", "config.yaml"),
		filepath.Join(home, ".tumblr-backup.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks settings that would make a run misbehave. Missing
// consumer credentials are reported by the auth phase instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Tumblr.APIBaseURL == "" {
		errs = append(errs, errors.New("tumblr api base url is required"))
	}
	if c.Tumblr.OAuthBaseURL == "" {
		errs = append(errs, errors.New("tumblr oauth base url is required"))
	}
	if c.Tumblr.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	switch c.Auth.Store {
	case TokenStoreFile, TokenStoreEncrypted:
		if c.Auth.TokenFile == "" {
			errs = append(errs, fmt.Errorf("token file is required for the %s token store", c.Auth.Store))
		}
	case TokenStoreKeyring:
	default:
		errs = append(errs, fmt.Errorf("invalid token store %q", c.Auth.Store))
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Storage.MediaDir == "" {
		errs = append(errs, errors.New("media directory is required"))
	}
	if c.Storage.TagCacheSize <= 0 {
		errs = append(errs, errors.New("tag cache size must be positive"))
	}

	if c.Pagination.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Pagination.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}

	if c.Download.Concurrency < 1 || c.Download.Concurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("download concurrency must be between 1 and %d", MaxConcurrency))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.Download.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags applies flag values that were explicitly set
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["db"].(string); ok && v != "" {
		c.Storage.DatabasePath = v
	}
	if v, ok := flags["media-dir"].(string); ok && v != "" {
		c.Storage.MediaDir = v
	}
	if v, ok := flags["token-file"].(string); ok && v != "" {
		c.Auth.TokenFile = v
	}
	if v, ok := flags["token-store"].(string); ok && v != "" {
		c.Auth.Store = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Download.Concurrency = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok {
		c.Logging.File = v
	}
	if v, ok := flags["metrics-textfile"].(string); ok && v != "" {
		c.Metrics.Textfile = v
	}
}

// Load resolves configuration with precedence
// flags > environment > .env > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tumblr-backup.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

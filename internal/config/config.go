// Package config defines crawl configuration options.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a crawl session.
type Config struct {
	// === Bounds ===

	// Maximum length of a single absolute URL
	MaxURLLength int `mapstructure:"max_url_length"`

	// Maximum total pages to crawl before stopping
	MaxURLs int `mapstructure:"max_urls"`

	// Maximum crawling depth from the seed (0 = seed only)
	MaxDepth int `mapstructure:"max_depth"`

	// === Network ===

	// Global delay between request dispatches
	Delay time.Duration `mapstructure:"delay"`

	// Overall HTTP request timeout
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Maximum number of redirects to follow
	MaxRedirects int `mapstructure:"max_redirects"`

	// User agent string sent with every request
	UserAgent string `mapstructure:"user_agent"`

	// Verify TLS certificates and hostnames
	TLSVerify bool `mapstructure:"tls_verify"`

	// Retry failed requests inside a single fetch
	RetryFailedRequests bool `mapstructure:"retry_failed_requests"`

	// Maximum retries per request when retrying is enabled
	MaxRetries int `mapstructure:"max_retries"`

	// === Memory ===

	// Initial buffer size for downloaded pages
	InitialPageSize int `mapstructure:"initial_page_size"`

	// Maximum page size; larger bodies abort the fetch
	MaxPageSize int64 `mapstructure:"max_page_size"`

	// === Concurrency ===

	// Number of fetch workers
	Concurrency int `mapstructure:"concurrency"`

	// === Output ===

	// Save downloaded pages to files under PagesDir
	SavePages bool `mapstructure:"save_pages"`

	// Directory for saved pages
	PagesDir string `mapstructure:"pages_dir"`

	// Prefix for saved page files
	PageFilePrefix string `mapstructure:"page_file_prefix"`

	// Print detailed progress
	Verbose bool `mapstructure:"verbose"`

	// === Storage ===

	// Path to the SQLite database file
	DBPath string `mapstructure:"db_path"`

	// === Content filtering ===

	// Follow links to other domains
	FollowExternalLinks bool `mapstructure:"follow_external_links"`

	// When FollowExternalLinks is false, only these hosts are crawled.
	// Empty list means the seed host only.
	AllowedDomains []string `mapstructure:"allowed_domains"`

	// URLs containing any of these substrings are skipped
	SkipPatterns []string `mapstructure:"skip_patterns"`
}

// DefaultSkipPatterns covers common binary extensions and non-HTTP schemes.
var DefaultSkipPatterns = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".bmp",
	".mp3", ".mp4", ".avi", ".mov",
	".zip", ".rar", ".tar", ".gz",
	".exe", ".dmg", ".pkg",
	"mailto:", "javascript:", "tel:",
}

// Default returns a config with default settings.
func Default() *Config {
	return &Config{
		MaxURLLength:        2048,
		MaxURLs:             10000,
		MaxDepth:            3,
		Delay:               5 * time.Second,
		RequestTimeout:      30 * time.Second,
		MaxRedirects:        5,
		UserAgent:           "WebCrawler/1.0",
		TLSVerify:           false,
		RetryFailedRequests: false,
		MaxRetries:          3,
		InitialPageSize:     4096,
		MaxPageSize:         10 * 1024 * 1024,
		Concurrency:         4,
		SavePages:           true,
		PagesDir:            "pages",
		PageFilePrefix:      "page_",
		Verbose:             true,
		DBPath:              "crawler.db",
		FollowExternalLinks: true,
		AllowedDomains:      nil,
		SkipPatterns:        DefaultSkipPatterns,
	}
}

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CRAWLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("crawld")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxURLLength <= 0 {
		return fmt.Errorf("max_url_length must be positive, got %d", c.MaxURLLength)
	}
	if c.MaxURLs <= 0 {
		return fmt.Errorf("max_urls must be positive, got %d", c.MaxURLs)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must not be negative, got %d", c.MaxRedirects)
	}
	if c.InitialPageSize <= 0 {
		return fmt.Errorf("initial_page_size must be positive, got %d", c.InitialPageSize)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("max_page_size must be positive, got %d", c.MaxPageSize)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("max_url_length", cfg.MaxURLLength)
	v.SetDefault("max_urls", cfg.MaxURLs)
	v.SetDefault("max_depth", cfg.MaxDepth)
	v.SetDefault("delay", cfg.Delay)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("max_redirects", cfg.MaxRedirects)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("tls_verify", cfg.TLSVerify)
	v.SetDefault("retry_failed_requests", cfg.RetryFailedRequests)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("initial_page_size", cfg.InitialPageSize)
	v.SetDefault("max_page_size", cfg.MaxPageSize)
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("save_pages", cfg.SavePages)
	v.SetDefault("pages_dir", cfg.PagesDir)
	v.SetDefault("page_file_prefix", cfg.PageFilePrefix)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("follow_external_links", cfg.FollowExternalLinks)
	v.SetDefault("allowed_domains", cfg.AllowedDomains)
	v.SetDefault("skip_patterns", cfg.SkipPatterns)
}

// Package config loads the siteprobe CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/siteprobe/crawler"
)

// AppName names the XDG directories.
const AppName = "siteprobe"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

var (
	// ErrConfigNotFound is returned by Load when the file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	ErrInvalidMaxPages    = errors.New("crawl.max_pages must be > 0")
	ErrInvalidMaxDepth    = errors.New("crawl.max_depth must be >= 0")
	ErrInvalidBatchSize   = errors.New("crawl.batch_size must be > 0")
	ErrInvalidDelay       = errors.New("durations must not be negative")
	ErrInvalidConcurrency = errors.New("linkcheck.concurrency must be > 0")
	ErrInvalidRetries     = errors.New("fetch.max_retries must be >= 0")
	ErrInvalidBackend     = errors.New("cache.backend must be memory, sqlite or redis")
	ErrMissingRedisAddr   = errors.New("cache.redis_addr is required for the redis backend")
	ErrInvalidLogLevel    = errors.New("log.level must be debug, info, warn or error")
)

// Config is the CLI configuration.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl"`
	Fetch     FetchConfig     `yaml:"fetch"`
	LinkCheck LinkCheckConfig `yaml:"linkcheck"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CrawlConfig bounds the crawl.
type CrawlConfig struct {
	MaxPages        int      `yaml:"max_pages"`
	MaxDepth        int      `yaml:"max_depth"`
	BatchSize       int      `yaml:"batch_size"`
	PolitenessDelay Duration `yaml:"politeness_delay"`
	Include         []string `yaml:"include"`
	Exclude         []string `yaml:"exclude"`
	FollowExternal  bool     `yaml:"follow_external"`
	Formats         []string `yaml:"formats"`
}

// FetchConfig configures the HTTP page fetcher.
type FetchConfig struct {
	Timeout       Duration `yaml:"timeout"`
	UserAgent     string   `yaml:"user_agent"`
	Stealth       bool     `yaml:"stealth"`
	Device        string   `yaml:"device"`
	WaitUntil     string   `yaml:"wait_until"`
	Cache         bool     `yaml:"cache"`
	RateLimit     float64  `yaml:"rate_limit"`
	MaxRetries    int      `yaml:"max_retries"`
	RespectRobots bool     `yaml:"respect_robots"`
	MaxBodyBytes  int64    `yaml:"max_body_bytes"`
}

// LinkCheckConfig configures the link checker.
type LinkCheckConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Concurrency int      `yaml:"concurrency"`
	TTL         Duration `yaml:"ttl"`
	// SubBatchPause separates link-check sub-batches. Zero keeps the
	// default; a negative value disables the pause.
	SubBatchPause  Duration `yaml:"sub_batch_pause"`
	LenientDomains []string `yaml:"lenient_domains"`
}

// CacheConfig selects the TTL store shared by the fetcher and the checker.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxPages:        crawler.DefaultMaxPages,
			MaxDepth:        crawler.DefaultMaxDepth,
			BatchSize:       crawler.DefaultBatchSize,
			PolitenessDelay: DurationFrom(crawler.DefaultPolitenessDelay),
			Formats:         []string{string(crawler.FormatText)},
		},
		Fetch: FetchConfig{
			Timeout:    DurationFrom(crawler.DefaultFetchTimeout),
			Device:     "desktop",
			RateLimit:  10,
			MaxRetries: 2,
		},
		LinkCheck: LinkCheckConfig{
			Enabled:       true,
			Concurrency:   5,
			TTL:           DurationFrom(24 * time.Hour),
			SubBatchPause: DurationFrom(250 * time.Millisecond),
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Path:    filepath.Join(CacheDir(), "cache.db"),
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/siteprobe/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// CacheDir is $XDG_CACHE_HOME/siteprobe.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Load reads and validates the file at path on top of Default. A missing
// file returns ErrConfigNotFound.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path) //nolint:gosec // user-provided config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from r on top of Default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i, f := range c.Crawl.Formats {
		c.Crawl.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMaxPages, c.Crawl.MaxPages)
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMaxDepth, c.Crawl.MaxDepth)
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidBatchSize, c.Crawl.BatchSize)
	}
	for name, d := range map[string]Duration{
		"crawl.politeness_delay": c.Crawl.PolitenessDelay,
		"fetch.timeout":          c.Fetch.Timeout,
		"linkcheck.ttl":          c.LinkCheck.TTL,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%w: %s is %s", ErrInvalidDelay, name, d.Duration)
		}
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidRetries, c.Fetch.MaxRetries)
	}
	if c.LinkCheck.Concurrency <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidConcurrency, c.LinkCheck.Concurrency)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidBackend, c.Cache.Backend)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidLogLevel, c.Log.Level)
	}
	return nil
}

// LogLevel returns the zerolog level for Log.Level.
func (c Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Request builds the crawl request for startURL.
func (c Config) Request(startURL string) crawler.Request {
	formats := make([]crawler.Format, len(c.Crawl.Formats))
	for i, f := range c.Crawl.Formats {
		formats[i] = crawler.Format(f)
	}
	return crawler.Request{
		StartURL:        startURL,
		MaxPages:        c.Crawl.MaxPages,
		MaxDepth:        c.Crawl.MaxDepth,
		Formats:         formats,
		IncludePatterns: c.Crawl.Include,
		ExcludePatterns: c.Crawl.Exclude,
		FollowExternal:  c.Crawl.FollowExternal,
		BatchSize:       c.Crawl.BatchSize,
		PolitenessDelay: c.Crawl.PolitenessDelay.Duration,
		Fetch: crawler.FetchOptions{
			Cache:     c.Fetch.Cache,
			Stealth:   c.Fetch.Stealth,
			Timeout:   c.Fetch.Timeout.Duration,
			Device:    c.Fetch.Device,
			WaitUntil: c.Fetch.WaitUntil,
		},
	}
}

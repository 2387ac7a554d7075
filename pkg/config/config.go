// Package config loads the coin catalog configuration from a YAML file and
// the environment.
//
// Environment variables override the file so secrets can stay out of it:
//
//	COINRANKING_API_KEY   api.api_key
//	COINRANKING_BASE_URL  api.base_url
//	REDIS_ADDR            redis.addr
//	FAVORITES_PATH        favorites.path
//	LOG_LEVEL             logging.level
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Sternrassler/coin-catalog/pkg/aggregator"
	"github.com/Sternrassler/coin-catalog/pkg/catalog"
	"github.com/Sternrassler/coin-catalog/pkg/client"
	"github.com/Sternrassler/coin-catalog/pkg/favorites"
	"github.com/Sternrassler/coin-catalog/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIKey        = "COINRANKING_API_KEY"
	EnvBaseURL       = "COINRANKING_BASE_URL"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvFavoritesPath = "FAVORITES_PATH"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config holds all settings of the coin catalog.
type Config struct {
	API struct {
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		UserAgent      string        `yaml:"user_agent"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxRetries     int           `yaml:"max_retries"`
		InitialBackoff time.Duration `yaml:"initial_backoff"`
		MaxBackoff     time.Duration `yaml:"max_backoff"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
	} `yaml:"api"`

	Redis struct {
		// Addr enables Redis for cache and rate limit state when set.
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Catalog struct {
		PageSize int    `yaml:"page_size"`
		MaxItems int    `yaml:"max_items"`
		Sort     string `yaml:"sort"`
	} `yaml:"catalog"`

	Favorites struct {
		Path string `yaml:"path"`
		Key  string `yaml:"key"`
	} `yaml:"favorites"`

	Aggregator struct {
		MaxConcurrency int           `yaml:"max_concurrency"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	} `yaml:"aggregator"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cc := client.DefaultConfig("")
	cat := catalog.DefaultConfig()
	agg := aggregator.DefaultConfig()

	var cfg Config
	cfg.API.BaseURL = cc.BaseURL
	cfg.API.UserAgent = cc.UserAgent
	cfg.API.Timeout = cc.Timeout
	cfg.API.MaxRetries = cc.MaxRetries
	cfg.API.InitialBackoff = cc.InitialBackoff
	cfg.API.MaxBackoff = cc.MaxBackoff
	cfg.API.CacheTTL = cc.MemoryCacheTTL
	cfg.Catalog.PageSize = cat.PageSize
	cfg.Catalog.MaxItems = cat.MaxItems
	cfg.Catalog.Sort = catalog.SortNone.String()
	cfg.Favorites.Path = "favorites.db"
	cfg.Favorites.Key = favorites.DefaultKey
	cfg.Aggregator.MaxConcurrency = agg.MaxConcurrency
	cfg.Aggregator.FetchTimeout = agg.FetchTimeout
	cfg.Logging.Level = string(logging.LevelInfo)
	return &cfg
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvFavoritesPath); v != "" {
		cfg.Favorites.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	var errs []error

	if c.API.APIKey == "" {
		errs = append(errs, fmt.Errorf("api key is required (set %s)", EnvAPIKey))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("invalid base url: %q", c.API.BaseURL))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0 (got %d)", c.API.MaxRetries))
	}
	if c.Catalog.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive (got %d)", c.Catalog.PageSize))
	}
	if c.Catalog.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("max_items must be positive (got %d)", c.Catalog.MaxItems))
	}
	if _, err := catalog.ParseSort(c.Catalog.Sort); err != nil {
		errs = append(errs, err)
	}
	if c.Favorites.Path == "" {
		errs = append(errs, errors.New("favorites path is required"))
	}
	if c.Aggregator.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive (got %d)", c.Aggregator.MaxConcurrency))
	}
	if !logging.ValidLevel(logging.LogLevel(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ClientConfig builds the gateway configuration. redisClient may be nil.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	cc := client.DefaultConfig(c.API.APIKey)
	cc.BaseURL = c.API.BaseURL
	if c.API.UserAgent != "" {
		cc.UserAgent = c.API.UserAgent
	}
	cc.Timeout = c.API.Timeout
	cc.MaxRetries = c.API.MaxRetries
	cc.InitialBackoff = c.API.InitialBackoff
	cc.MaxBackoff = c.API.MaxBackoff
	cc.MemoryCacheTTL = c.API.CacheTTL
	cc.Redis = redisClient
	return cc
}

// RedisOptions returns the Redis connection options, or nil when Redis is
// not configured.
func (c *Config) RedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// CatalogConfig builds the catalog service configuration.
func (c *Config) CatalogConfig() catalog.Config {
	cfg := catalog.DefaultConfig()
	cfg.PageSize = c.Catalog.PageSize
	cfg.MaxItems = c.Catalog.MaxItems
	return cfg
}

// AggregatorConfig builds the favorites aggregator configuration.
func (c *Config) AggregatorConfig() aggregator.Config {
	cfg := aggregator.DefaultConfig()
	cfg.MaxConcurrency = c.Aggregator.MaxConcurrency
	cfg.FetchTimeout = c.Aggregator.FetchTimeout
	return cfg
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

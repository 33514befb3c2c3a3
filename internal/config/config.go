// Package config loads the application configuration with viper and
// initializes the global zap logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	RelevanceFloor     float64  `yaml:"relevance_floor" mapstructure:"relevance_floor"`
	Coalesce           bool     `yaml:"coalesce" mapstructure:"coalesce"`
	DirectoryBlocklist []string `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	OpenDurationMs   int `yaml:"open_duration_ms" mapstructure:"open_duration_ms"`
}

// RetryConfig configures adapter-level retries of transient errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CacheConfig selects and configures the result cache backend.
type CacheConfig struct {
	Backend           string           `yaml:"backend" mapstructure:"backend"`
	MaxEntries        int              `yaml:"max_entries" mapstructure:"max_entries"`
	Redis             RedisConfig      `yaml:"redis" mapstructure:"redis"`
	DatabaseURL       string           `yaml:"database_url" mapstructure:"database_url"`
	Pool              cache.PoolConfig `yaml:"pool" mapstructure:"pool"`
	SQLitePath        string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	BadgerPath        string           `yaml:"badger_path" mapstructure:"badger_path"`
	SweepIntervalSecs int              `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	TTL               CacheTTLConfig   `yaml:"ttl" mapstructure:"ttl"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// CacheTTLConfig holds the per-use-case cache lifetimes.
type CacheTTLConfig struct {
	SearchMinutes  int `yaml:"search_minutes" mapstructure:"search_minutes"`
	SimilarMinutes int `yaml:"similar_minutes" mapstructure:"similar_minutes"`
	SummaryHours   int `yaml:"summary_hours" mapstructure:"summary_hours"`
}

// ProvidersConfig holds one section per search provider.
type ProvidersConfig struct {
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// ProviderConfig holds the settings every provider shares.
type ProviderConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
}

// Timeout returns the per-search timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	Model          string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI settings. ReadBaseURL serves summaries.
type JinaConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	ReadBaseURL    string `yaml:"read_base_url" mapstructure:"read_base_url"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ProviderConfig `yaml:",inline" mapstructure:",squash"`
	ClientID       string `yaml:"client_id" mapstructure:"client_id"`
	Username       string `yaml:"username" mapstructure:"username"`
	KeyPath        string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL       string `yaml:"login_url" mapstructure:"login_url"`
}

// AnthropicConfig holds Anthropic API settings for summaries.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	ContextChars int    `yaml:"context_chars" mapstructure:"context_chars"`
}

// MonitoringConfig configures circuit health alerts. Alerts are disabled
// when WebhookURL is empty.
type MonitoringConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// defaults lists every key with its default. Keys must be registered here
// for environment overrides to reach Unmarshal.
var defaults = map[string]any{
	"log.level":                   "info",
	"log.format":                  "json",
	"server.port":                 8080,
	"server.cors_origins":         []string{"*"},
	"server.request_timeout_secs": 60,

	"search.relevance_floor":     0.0,
	"search.coalesce":            false,
	"search.directory_blocklist": []string{},

	"breaker.failure_threshold": 3,
	"breaker.open_duration_ms":  60000,

	"retry.max_attempts":       2,
	"retry.initial_backoff_ms": 250,
	"retry.max_backoff_ms":     5000,
	"retry.multiplier":         2.0,
	"retry.jitter_fraction":    0.25,

	"cache.backend":             "memory",
	"cache.max_entries":         10000,
	"cache.redis.addr":          "localhost:6379",
	"cache.redis.password":      "",
	"cache.redis.db":            0,
	"cache.redis.namespace":     "company-search:",
	"cache.database_url":        "",
	"cache.pool.max_conns":      int32(5),
	"cache.pool.min_conns":      int32(1),
	"cache.sqlite_path":         "company-search-cache.db",
	"cache.badger_path":         "",
	"cache.sweep_interval_secs": 300,
	"cache.ttl.search_minutes":  15,
	"cache.ttl.similar_minutes": 60,
	"cache.ttl.summary_hours":   24,

	"providers.perplexity.enabled":      true,
	"providers.perplexity.key":          "",
	"providers.perplexity.base_url":     "https://api.perplexity.ai",
	"providers.perplexity.model":        "sonar-pro",
	"providers.perplexity.timeout_secs": 30,
	"providers.perplexity.rate_limit":   2.0,
	"providers.perplexity.max_results":  10,

	"providers.jina.enabled":       true,
	"providers.jina.key":           "",
	"providers.jina.base_url":      "https://s.jina.ai",
	"providers.jina.read_base_url": "https://r.jina.ai",
	"providers.jina.timeout_secs":  15,
	"providers.jina.rate_limit":    5.0,
	"providers.jina.max_results":   10,

	"providers.google.enabled":      true,
	"providers.google.key":          "",
	"providers.google.base_url":     "https://places.googleapis.com/v1",
	"providers.google.timeout_secs": 10,
	"providers.google.rate_limit":   10.0,
	"providers.google.max_results":  20,

	"providers.salesforce.enabled":      false,
	"providers.salesforce.key":          "",
	"providers.salesforce.base_url":     "",
	"providers.salesforce.client_id":    "",
	"providers.salesforce.username":     "",
	"providers.salesforce.key_path":     "",
	"providers.salesforce.login_url":    "https://login.salesforce.com",
	"providers.salesforce.timeout_secs": 15,
	"providers.salesforce.rate_limit":   5.0,
	"providers.salesforce.max_results":  20,

	"anthropic.key":           "",
	"anthropic.base_url":      "",
	"anthropic.model":         "claude-haiku-4-5-20251001",
	"anthropic.max_tokens":    400,
	"anthropic.context_chars": 8000,

	"monitoring.webhook_url":         "",
	"monitoring.check_interval_secs": 60,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks value ranges, plus the settings the given command mode
// needs: "search", "serve", "summarize" or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Search.RelevanceFloor < 0 {
		add("search.relevance_floor must be >= 0")
	}
	if c.Breaker.FailureThreshold < 1 {
		add("breaker.failure_threshold must be >= 1")
	}
	if c.Breaker.OpenDurationMs < 1 {
		add("breaker.open_duration_ms must be >= 1")
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		add("retry.max_attempts must be between 1 and 10")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		add("retry.jitter_fraction must be between 0 and 1")
	}
	if c.Cache.TTL.SearchMinutes < 1 || c.Cache.TTL.SimilarMinutes < 1 || c.Cache.TTL.SummaryHours < 1 {
		add("cache.ttl values must be >= 1")
	}

	if c.Monitoring.WebhookURL != "" && c.Monitoring.CheckIntervalSecs < 1 {
		add("monitoring.check_interval_secs must be >= 1 when a webhook is set")
	}

	switch c.Cache.Backend {
	case "", "memory", "badger":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr is required for the redis backend")
		}
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			add("cache.database_url is required for the postgres backend")
		}
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			add("cache.sqlite_path is required for the sqlite backend")
		}
	default:
		add("cache.backend %q is not one of memory, redis, postgres, sqlite, badger", c.Cache.Backend)
	}

	for name, p := range c.Providers.shared() {
		if !p.Enabled {
			continue
		}
		if p.TimeoutSecs < 1 {
			add("providers.%s.timeout_secs must be >= 1", name)
		}
		if p.RateLimit < 0 {
			add("providers.%s.rate_limit must be >= 0", name)
		}
	}

	switch mode {
	case "search":
		if len(c.Providers.Configured()) == 0 {
			add("at least one provider must be enabled and configured")
		}
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	case "summarize":
		if c.Anthropic.Key == "" {
			add("anthropic.key is required")
		}
	case "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (p ProvidersConfig) shared() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"perplexity": p.Perplexity.ProviderConfig,
		"jina":       p.Jina.ProviderConfig,
		"google":     p.Google.ProviderConfig,
		"salesforce": p.Salesforce.ProviderConfig,
	}
}

// Configured returns the names of enabled providers that have credentials,
// in registry order.
func (p ProvidersConfig) Configured() []string {
	var out []string
	if p.Perplexity.Enabled && p.Perplexity.Key != "" {
		out = append(out, "perplexity")
	}
	if p.Jina.Enabled && p.Jina.Key != "" {
		out = append(out, "jina")
	}
	if p.Google.Enabled && p.Google.Key != "" {
		out = append(out, "google")
	}
	if p.Salesforce.Enabled && p.Salesforce.ClientID != "" && p.Salesforce.Username != "" && p.Salesforce.KeyPath != "" {
		out = append(out, "salesforce")
	}
	return out
}

// CacheOptions converts the cache section for cache.Open.
func (c *Config) CacheOptions() cache.Options {
	pool := c.Cache.Pool
	return cache.Options{
		Backend:    c.Cache.Backend,
		MaxEntries: c.Cache.MaxEntries,
		Redis: cache.RedisOptions{
			Addr:      c.Cache.Redis.Addr,
			Password:  c.Cache.Redis.Password,
			DB:        c.Cache.Redis.DB,
			Namespace: c.Cache.Redis.Namespace,
		},
		DatabaseURL: c.Cache.DatabaseURL,
		Pool:        &pool,
		SQLitePath:  c.Cache.SQLitePath,
		BadgerPath:  c.Cache.BadgerPath,
	}
}

// CachePolicy returns the configured TTLs. Unset values keep the defaults.
func (c *Config) CachePolicy() cache.Policy {
	p := cache.DefaultPolicy()
	if c.Cache.TTL.SearchMinutes > 0 {
		p.Search = time.Duration(c.Cache.TTL.SearchMinutes) * time.Minute
	}
	if c.Cache.TTL.SimilarMinutes > 0 {
		p.Similar = time.Duration(c.Cache.TTL.SimilarMinutes) * time.Minute
	}
	if c.Cache.TTL.SummaryHours > 0 {
		p.Summary = time.Duration(c.Cache.TTL.SummaryHours) * time.Hour
	}
	return p
}

// SweepInterval returns how often expired cache entries are purged.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalSecs) * time.Second
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	r := c.Retry
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// BreakerPolicy converts the breaker section.
func (c *Config) BreakerPolicy() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.Breaker.FailureThreshold, c.Breaker.OpenDurationMs)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

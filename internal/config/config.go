// Package config defines the top-level configuration for the dmarket scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DMBOT_* environment variables.
type Config struct {
	Auth       AuthConfig       `toml:"auth"`
	DMarket    DMarketConfig    `toml:"dmarket"`
	Steam      SteamConfig      `toml:"steam"`
	RateLimits RateLimitsConfig `toml:"rate_limits"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Cache      CacheConfig      `toml:"cache"`
	Scan       ScanConfig       `toml:"scan"`
	Feed       FeedConfig       `toml:"feed"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// AuthConfig holds API credentials and the request signing scheme.
type AuthConfig struct {
	// Scheme selects the signing algorithm: "ed25519" or "hmac".
	Scheme string `toml:"scheme"`
	APIKey string `toml:"api_key"`
	// Secret is the hex-encoded signing secret: an ed25519 seed or full
	// private key, or an HMAC shared secret.
	Secret string `toml:"secret"`
	// EncryptedSecretPath points at a passphrase-encrypted secret file used
	// instead of Secret when set.
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// DMarketConfig holds marketplace API endpoints and HTTP behavior.
type DMarketConfig struct {
	APIHost     string   `toml:"api_host"`
	WSHost      string   `toml:"ws_host"`
	Timeout     duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffBase duration `toml:"backoff_base"`
	BackoffCap  duration `toml:"backoff_cap"`
}

// SteamConfig holds the secondary price-reference source parameters.
type SteamConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	// PerMinute paces requests to the informally rate-limited endpoint.
	PerMinute int      `toml:"per_minute"`
	Timeout   duration `toml:"timeout"`
}

// WindowConfig is one endpoint class's sliding-window allowance.
type WindowConfig struct {
	Limit   int      `toml:"limit"`
	Window  duration `toml:"window"`
	MaxWait duration `toml:"max_wait"`
}

// RateLimitsConfig holds per-endpoint-class request allowances.
type RateLimitsConfig struct {
	Market    WindowConfig `toml:"market"`
	Account   WindowConfig `toml:"account"`
	Trading   WindowConfig `toml:"trading"`
	Reference WindowConfig `toml:"reference"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	BaseCooldown     duration `toml:"base_cooldown"`
	MaxCooldown      duration `toml:"max_cooldown"`
}

// CacheConfig holds response cache backend selection and tier TTLs.
type CacheConfig struct {
	// Backend is "redis" or "memory".
	Backend   string   `toml:"backend"`
	ShortTTL  duration `toml:"short_ttl"`
	MediumTTL duration `toml:"medium_ttl"`
	LongTTL   duration `toml:"long_ttl"`
}

// LevelConfig overrides one scan level's thresholds. Prices are minor units.
type LevelConfig struct {
	MinProfitPercent float64 `toml:"min_profit_percent"`
	PriceFrom        int64   `toml:"price_from"`
	PriceTo          int64   `toml:"price_to"`
}

// ScanConfig holds scanner behavior: which games to sweep, the active level,
// detection economics, checkpoint cadence, and adaptive pacing bounds.
type ScanConfig struct {
	Games           []string `toml:"games"`
	Level           string   `toml:"level"`
	CommissionRate  float64  `toml:"commission_rate"`
	Owner           string   `toml:"owner"`
	PageLimit       int      `toml:"page_limit"`
	CheckpointEvery int      `toml:"checkpoint_every"`
	EmptyPageBudget int      `toml:"empty_page_budget"`

	BaseInterval  duration `toml:"base_interval"`
	MinInterval   duration `toml:"min_interval"`
	MaxInterval   duration `toml:"max_interval"`
	RecoveryFloor duration `toml:"recovery_floor"`
	WindowSize    int      `toml:"window_size"`

	// Retention bounds how long terminal checkpoints are kept;
	// PurgeInterval is how often the GC ticker fires.
	Retention     duration `toml:"retention"`
	PurgeInterval duration `toml:"purge_interval"`

	// Levels overrides the built-in thresholds per level name.
	Levels map[string]LevelConfig `toml:"levels"`
}

// FeedConfig holds real-time feed parameters.
type FeedConfig struct {
	Enabled     bool     `toml:"enabled"`
	MaxAttempts int      `toml:"max_attempts"`
	BaseBackoff duration `toml:"base_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials and queue sizing.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueCapacity     int      `toml:"queue_capacity"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Auth: AuthConfig{
			Scheme: "ed25519",
		},
		DMarket: DMarketConfig{
			APIHost:     "https://api.dmarket.com",
			WSHost:      "wss://ws.dmarket.com",
			Timeout:     duration{15 * time.Second},
			MaxRetries:  3,
			BackoffBase: duration{500 * time.Millisecond},
			BackoffCap:  duration{30 * time.Second},
		},
		Steam: SteamConfig{
			Enabled:   true,
			BaseURL:   "https://steamcommunity.com",
			PerMinute: 20,
			Timeout:   duration{10 * time.Second},
		},
		RateLimits: RateLimitsConfig{
			Market:    WindowConfig{Limit: 30, Window: duration{time.Minute}, MaxWait: duration{2 * time.Minute}},
			Account:   WindowConfig{Limit: 20, Window: duration{time.Minute}, MaxWait: duration{2 * time.Minute}},
			Trading:   WindowConfig{Limit: 10, Window: duration{time.Minute}, MaxWait: duration{time.Minute}},
			Reference: WindowConfig{Limit: 15, Window: duration{time.Minute}, MaxWait: duration{2 * time.Minute}},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			BaseCooldown:     duration{30 * time.Second},
			MaxCooldown:      duration{5 * time.Minute},
		},
		Cache: CacheConfig{
			Backend:   "memory",
			ShortTTL:  duration{30 * time.Second},
			MediumTTL: duration{5 * time.Minute},
			LongTTL:   duration{30 * time.Minute},
		},
		Scan: ScanConfig{
			Games:           []string{"a8db"},
			Level:           "standard",
			CommissionRate:  0.07,
			PageLimit:       100,
			CheckpointEvery: 100,
			EmptyPageBudget: 3,
			BaseInterval:    duration{60 * time.Second},
			MinInterval:     duration{15 * time.Second},
			MaxInterval:     duration{300 * time.Second},
			RecoveryFloor:   duration{60 * time.Second},
			WindowSize:      10,
			Retention:       duration{72 * time.Hour},
			PurgeInterval:   duration{time.Hour},
		},
		Feed: FeedConfig{
			Enabled:     true,
			MaxAttempts: 5,
			BaseBackoff: duration{2 * time.Second},
			MaxBackoff:  duration{60 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dmarketbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Notify: NotifyConfig{
			QueueCapacity: 256,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLevels = map[string]bool{
	"volume": true, "budget": true, "standard": true, "premium": true, "rare": true,
}

var validSchemes = map[string]bool{
	"ed25519": true, "hmac": true,
}

// Validate checks the configuration for inconsistencies and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !validSchemes[strings.ToLower(c.Auth.Scheme)] {
		errs = append(errs, fmt.Sprintf("auth: unknown scheme %q (valid: ed25519, hmac)", c.Auth.Scheme))
	}
	if c.Auth.APIKey == "" {
		errs = append(errs, "auth: api_key must not be empty")
	}
	if c.Auth.Secret == "" && c.Auth.EncryptedSecretPath == "" {
		errs = append(errs, "auth: either secret or encrypted_secret_path must be set")
	}
	if c.Auth.EncryptedSecretPath != "" && c.Auth.SecretPassword == "" {
		errs = append(errs, "auth: secret_password is required when encrypted_secret_path is set")
	}

	if c.DMarket.APIHost == "" {
		errs = append(errs, "dmarket: api_host must not be empty")
	}
	if c.DMarket.MaxRetries < 0 {
		errs = append(errs, "dmarket: max_retries must not be negative")
	}

	for name, w := range map[string]WindowConfig{
		"market":    c.RateLimits.Market,
		"account":   c.RateLimits.Account,
		"trading":   c.RateLimits.Trading,
		"reference": c.RateLimits.Reference,
	} {
		if w.Limit <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limits.%s: limit must be positive", name))
		}
		if w.Window.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limits.%s: window must be positive", name))
		}
	}

	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, "breaker: failure_threshold must be positive")
	}
	if c.Breaker.MaxCooldown.Duration < c.Breaker.BaseCooldown.Duration {
		errs = append(errs, "breaker: max_cooldown must not be below base_cooldown")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: redis, memory)", c.Cache.Backend))
	}

	if len(c.Scan.Games) == 0 {
		errs = append(errs, "scan: at least one game must be configured")
	}
	if !validLevels[strings.ToLower(c.Scan.Level)] {
		errs = append(errs, fmt.Sprintf("scan: unknown level %q (valid: volume, budget, standard, premium, rare)", c.Scan.Level))
	}
	if c.Scan.CommissionRate < 0 || c.Scan.CommissionRate >= 1 {
		errs = append(errs, fmt.Sprintf("scan: commission_rate must be in [0, 1), got %g", c.Scan.CommissionRate))
	}
	if c.Scan.MinInterval.Duration > c.Scan.MaxInterval.Duration {
		errs = append(errs, "scan: min_interval must not exceed max_interval")
	}
	for name, lvl := range c.Scan.Levels {
		if !validLevels[strings.ToLower(name)] {
			errs = append(errs, fmt.Sprintf("scan.levels: unknown level %q", name))
			continue
		}
		if lvl.PriceFrom > lvl.PriceTo {
			errs = append(errs, fmt.Sprintf("scan.levels.%s: price_from exceeds price_to", name))
		}
	}

	if c.Feed.Enabled && c.DMarket.WSHost == "" {
		errs = append(errs, "feed: dmarket.ws_host must be set when the feed is enabled")
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}

	if strings.ToLower(c.Cache.Backend) == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when cache.backend is redis")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

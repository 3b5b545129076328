package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DMBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DMBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Auth ──
	setStr(&cfg.Auth.Scheme, "DMBOT_AUTH_SCHEME")
	setStr(&cfg.Auth.APIKey, "DMBOT_AUTH_API_KEY")
	setStr(&cfg.Auth.Secret, "DMBOT_AUTH_SECRET")
	setStr(&cfg.Auth.EncryptedSecretPath, "DMBOT_AUTH_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Auth.SecretPassword, "DMBOT_AUTH_SECRET_PASSWORD")

	// ── DMarket ──
	setStr(&cfg.DMarket.APIHost, "DMBOT_DMARKET_API_HOST")
	setStr(&cfg.DMarket.WSHost, "DMBOT_DMARKET_WS_HOST")
	setDuration(&cfg.DMarket.Timeout, "DMBOT_DMARKET_TIMEOUT")
	setInt(&cfg.DMarket.MaxRetries, "DMBOT_DMARKET_MAX_RETRIES")
	setDuration(&cfg.DMarket.BackoffBase, "DMBOT_DMARKET_BACKOFF_BASE")
	setDuration(&cfg.DMarket.BackoffCap, "DMBOT_DMARKET_BACKOFF_CAP")

	// ── Steam ──
	setBool(&cfg.Steam.Enabled, "DMBOT_STEAM_ENABLED")
	setStr(&cfg.Steam.BaseURL, "DMBOT_STEAM_BASE_URL")
	setInt(&cfg.Steam.PerMinute, "DMBOT_STEAM_PER_MINUTE")
	setDuration(&cfg.Steam.Timeout, "DMBOT_STEAM_TIMEOUT")

	// ── Rate limits ──
	setInt(&cfg.RateLimits.Market.Limit, "DMBOT_RATE_LIMITS_MARKET_LIMIT")
	setDuration(&cfg.RateLimits.Market.Window, "DMBOT_RATE_LIMITS_MARKET_WINDOW")
	setDuration(&cfg.RateLimits.Market.MaxWait, "DMBOT_RATE_LIMITS_MARKET_MAX_WAIT")
	setInt(&cfg.RateLimits.Account.Limit, "DMBOT_RATE_LIMITS_ACCOUNT_LIMIT")
	setDuration(&cfg.RateLimits.Account.Window, "DMBOT_RATE_LIMITS_ACCOUNT_WINDOW")
	setDuration(&cfg.RateLimits.Account.MaxWait, "DMBOT_RATE_LIMITS_ACCOUNT_MAX_WAIT")
	setInt(&cfg.RateLimits.Trading.Limit, "DMBOT_RATE_LIMITS_TRADING_LIMIT")
	setDuration(&cfg.RateLimits.Trading.Window, "DMBOT_RATE_LIMITS_TRADING_WINDOW")
	setDuration(&cfg.RateLimits.Trading.MaxWait, "DMBOT_RATE_LIMITS_TRADING_MAX_WAIT")
	setInt(&cfg.RateLimits.Reference.Limit, "DMBOT_RATE_LIMITS_REFERENCE_LIMIT")
	setDuration(&cfg.RateLimits.Reference.Window, "DMBOT_RATE_LIMITS_REFERENCE_WINDOW")
	setDuration(&cfg.RateLimits.Reference.MaxWait, "DMBOT_RATE_LIMITS_REFERENCE_MAX_WAIT")

	// ── Breaker ──
	setInt(&cfg.Breaker.FailureThreshold, "DMBOT_BREAKER_FAILURE_THRESHOLD")
	setDuration(&cfg.Breaker.BaseCooldown, "DMBOT_BREAKER_BASE_COOLDOWN")
	setDuration(&cfg.Breaker.MaxCooldown, "DMBOT_BREAKER_MAX_COOLDOWN")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "DMBOT_CACHE_BACKEND")
	setDuration(&cfg.Cache.ShortTTL, "DMBOT_CACHE_SHORT_TTL")
	setDuration(&cfg.Cache.MediumTTL, "DMBOT_CACHE_MEDIUM_TTL")
	setDuration(&cfg.Cache.LongTTL, "DMBOT_CACHE_LONG_TTL")

	// ── Scan ──
	setStringSlice(&cfg.Scan.Games, "DMBOT_SCAN_GAMES")
	setStr(&cfg.Scan.Level, "DMBOT_SCAN_LEVEL")
	setFloat64(&cfg.Scan.CommissionRate, "DMBOT_SCAN_COMMISSION_RATE")
	setStr(&cfg.Scan.Owner, "DMBOT_SCAN_OWNER")
	setInt(&cfg.Scan.PageLimit, "DMBOT_SCAN_PAGE_LIMIT")
	setInt(&cfg.Scan.CheckpointEvery, "DMBOT_SCAN_CHECKPOINT_EVERY")
	setInt(&cfg.Scan.EmptyPageBudget, "DMBOT_SCAN_EMPTY_PAGE_BUDGET")
	setDuration(&cfg.Scan.BaseInterval, "DMBOT_SCAN_BASE_INTERVAL")
	setDuration(&cfg.Scan.MinInterval, "DMBOT_SCAN_MIN_INTERVAL")
	setDuration(&cfg.Scan.MaxInterval, "DMBOT_SCAN_MAX_INTERVAL")
	setDuration(&cfg.Scan.RecoveryFloor, "DMBOT_SCAN_RECOVERY_FLOOR")
	setInt(&cfg.Scan.WindowSize, "DMBOT_SCAN_WINDOW_SIZE")
	setDuration(&cfg.Scan.Retention, "DMBOT_SCAN_RETENTION")
	setDuration(&cfg.Scan.PurgeInterval, "DMBOT_SCAN_PURGE_INTERVAL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "DMBOT_FEED_ENABLED")
	setInt(&cfg.Feed.MaxAttempts, "DMBOT_FEED_MAX_ATTEMPTS")
	setDuration(&cfg.Feed.BaseBackoff, "DMBOT_FEED_BASE_BACKOFF")
	setDuration(&cfg.Feed.MaxBackoff, "DMBOT_FEED_MAX_BACKOFF")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DMBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DMBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DMBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DMBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DMBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DMBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DMBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DMBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DMBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DMBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DMBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DMBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DMBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DMBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DMBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DMBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DMBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DMBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DMBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DMBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DMBOT_NOTIFY_EVENTS")
	setInt(&cfg.Notify.QueueCapacity, "DMBOT_NOTIFY_QUEUE_CAPACITY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DMBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

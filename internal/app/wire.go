package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/cache/memory"
	"github.com/alanyoungcy/dmarketbot/internal/cache/redis"
	"github.com/alanyoungcy/dmarketbot/internal/config"
	"github.com/alanyoungcy/dmarketbot/internal/crypto"
	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/feed"
	"github.com/alanyoungcy/dmarketbot/internal/notify"
	"github.com/alanyoungcy/dmarketbot/internal/platform/dmarket"
	"github.com/alanyoungcy/dmarketbot/internal/platform/steammarket"
	"github.com/alanyoungcy/dmarketbot/internal/queue"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
	"github.com/alanyoungcy/dmarketbot/internal/scanner"
	storememory "github.com/alanyoungcy/dmarketbot/internal/store/memory"
	"github.com/alanyoungcy/dmarketbot/internal/store/postgres"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	DMarket     *dmarket.Client
	Steam       *steammarket.Client
	Checkpoints domain.CheckpointStore
	Queue       *queue.Queue
	Drainer     *notify.Drainer
	Scanners    []*scanner.Scanner
	Feeds       []*feed.Listener

	// PurgeRetention and PurgeInterval drive the checkpoint GC ticker.
	PurgeRetention time.Duration
	PurgeInterval  time.Duration
	FeedsEnabled   bool
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Request signing ---
	secretHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Auth.Secret,
		EncryptedKeyPath: cfg.Auth.EncryptedSecretPath,
		KeyPassword:      cfg.Auth.SecretPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signing secret: %w", err)
	}
	signer, err := crypto.NewSigner(cfg.Auth.Scheme, secretHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	// --- Rate limiting and circuit breaking ---
	limiter := ratelimit.NewLimiter(ratelimit.DefaultWindow(), map[ratelimit.Class]ratelimit.WindowConfig{
		ratelimit.ClassMarket:    windowConfig(cfg.RateLimits.Market),
		ratelimit.ClassAccount:   windowConfig(cfg.RateLimits.Account),
		ratelimit.ClassTrading:   windowConfig(cfg.RateLimits.Trading),
		ratelimit.ClassReference: windowConfig(cfg.RateLimits.Reference),
	})
	breaker := ratelimit.NewBreaker(ratelimit.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		BaseCooldown:     cfg.Breaker.BaseCooldown.Duration,
		MaxCooldown:      cfg.Breaker.MaxCooldown.Duration,
	})

	// --- Response cache ---
	ttls := domain.CacheTTLs{
		Short:  cfg.Cache.ShortTTL.Duration,
		Medium: cfg.Cache.MediumTTL.Duration,
		Long:   cfg.Cache.LongTTL.Duration,
	}
	var respCache domain.ResponseCache
	if strings.ToLower(cfg.Cache.Backend) == "redis" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		respCache = redis.NewResponseCache(redisClient, ttls)
	} else {
		respCache = memory.New(ttls)
	}

	// --- Marketplace clients ---
	deps.DMarket = dmarket.NewClient(dmarket.Config{
		BaseURL:     cfg.DMarket.APIHost,
		APIKey:      cfg.Auth.APIKey,
		Timeout:     cfg.DMarket.Timeout.Duration,
		MaxRetries:  cfg.DMarket.MaxRetries,
		BackoffBase: cfg.DMarket.BackoffBase.Duration,
		BackoffCap:  cfg.DMarket.BackoffCap.Duration,
	}, signer, limiter, breaker, respCache, logger)

	if cfg.Steam.Enabled {
		deps.Steam = steammarket.NewClient(steammarket.Config{
			BaseURL:   cfg.Steam.BaseURL,
			Timeout:   cfg.Steam.Timeout.Duration,
			PerMinute: cfg.Steam.PerMinute,
		}, limiter, breaker, respCache, logger)
	}

	// --- Checkpoint store ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Checkpoints = postgres.NewCheckpointStore(pgClient.Pool())
	} else {
		deps.Checkpoints = storememory.NewCheckpointStore()
	}

	// --- Notification queue and delivery ---
	deps.Queue = queue.New(cfg.Notify.QueueCapacity)
	closers = append(closers, deps.Queue.Close)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	kinds := make([]domain.EventKind, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		kinds = append(kinds, domain.EventKind(strings.TrimSpace(e)))
	}
	notifier := notify.NewNotifier(senders, kinds, logger)
	deps.Drainer = notify.NewDrainer(deps.Queue, notifier, logger)

	// --- Scanners and feeds, one pair per game ---
	level, ok := domain.LevelFromName(strings.ToLower(cfg.Scan.Level))
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown scan level %q", cfg.Scan.Level)
	}
	policies := scanner.DefaultPolicies()
	for name, override := range cfg.Scan.Levels {
		lvl, ok := domain.LevelFromName(strings.ToLower(name))
		if !ok {
			continue
		}
		policies[lvl] = domain.LevelPolicy{
			Level:            lvl,
			MinProfitPercent: override.MinProfitPercent,
			PriceFrom:        override.PriceFrom,
			PriceTo:          override.PriceTo,
		}
	}

	owner := cfg.Scan.Owner
	if owner == "" {
		if host, err := os.Hostname(); err == nil {
			owner = host
		} else {
			owner = "default"
		}
	}

	// Typed-nil guard: a disabled Steam client must stay a nil interface.
	var reference scanner.ReferenceSource
	if deps.Steam != nil {
		reference = deps.Steam
	}

	for _, game := range cfg.Scan.Games {
		sc := scanner.New(scanner.Config{
			Game:            domain.Game(game),
			Level:           level,
			Policy:          scanner.PolicyFor(policies, level),
			CommissionRate:  cfg.Scan.CommissionRate,
			Owner:           owner,
			PageLimit:       cfg.Scan.PageLimit,
			CheckpointEvery: cfg.Scan.CheckpointEvery,
			EmptyPageBudget: cfg.Scan.EmptyPageBudget,
			WindowSize:      cfg.Scan.WindowSize,
			BaseInterval:    cfg.Scan.BaseInterval.Duration,
			MinInterval:     cfg.Scan.MinInterval.Duration,
			MaxInterval:     cfg.Scan.MaxInterval.Duration,
			RecoveryFloor:   cfg.Scan.RecoveryFloor.Duration,
		}, deps.DMarket, deps.DMarket, reference, deps.Checkpoints, deps.Queue, logger)
		deps.Scanners = append(deps.Scanners, sc)

		if cfg.Feed.Enabled {
			deps.Feeds = append(deps.Feeds, feed.New(feed.Config{
				URL:         cfg.DMarket.WSHost + "/market",
				Game:        domain.Game(game),
				MaxAttempts: cfg.Feed.MaxAttempts,
				BaseBackoff: cfg.Feed.BaseBackoff.Duration,
				MaxBackoff:  cfg.Feed.MaxBackoff.Duration,
			}, sc.HandleListing, sc.DisableFeed, logger))
		}
	}

	deps.PurgeRetention = cfg.Scan.Retention.Duration
	deps.PurgeInterval = cfg.Scan.PurgeInterval.Duration
	deps.FeedsEnabled = cfg.Feed.Enabled

	return deps, cleanup, nil
}

func windowConfig(w config.WindowConfig) ratelimit.WindowConfig {
	return ratelimit.WindowConfig{
		Limit:   w.Limit,
		Window:  w.Window.Duration,
		MaxWait: w.MaxWait.Duration,
	}
}

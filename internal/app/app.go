// Package app provides the top-level application lifecycle management for the
// dmarket bot. It wires together all dependencies (signer, rate limiter,
// circuit breaker, caches, stores, scanners, feed listeners, and the
// notification queue) and runs them under a single errgroup until the context
// is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dmarketbot/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the scanner,
// feed, and notification goroutines, and blocks until the context is
// cancelled or a goroutine fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Any("games", a.cfg.Scan.Games),
		slog.String("level", a.cfg.Scan.Level),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Drainer.Run(ctx)
	})

	for _, sc := range deps.Scanners {
		sc := sc
		g.Go(func() error {
			return sc.Run(ctx)
		})
	}

	if deps.FeedsEnabled {
		for _, listener := range deps.Feeds {
			listener := listener
			g.Go(func() error {
				return listener.Run(ctx)
			})
		}
	}

	if deps.PurgeInterval > 0 {
		g.Go(func() error {
			return a.purgeLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// purgeLoop periodically removes terminal checkpoints older than the
// configured retention so the store does not grow without bound.
func (a *App) purgeLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(deps.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := deps.Checkpoints.PurgeOlderThan(ctx, deps.PurgeRetention)
			if err != nil {
				a.logger.WarnContext(ctx, "checkpoint purge failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if removed > 0 {
				a.logger.InfoContext(ctx, "purged stale checkpoints",
					slog.Int64("removed", removed),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package dmarket is the REST client for the item marketplace API. Every
// call runs the same pipeline: cache lookup, circuit-breaker check, rate
// limiter slot, request signing, bounded-timeout HTTP, retry with backoff,
// error classification, and cache population.
package dmarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/cache"
	"github.com/alanyoungcy/dmarketbot/internal/crypto"
	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

// Config holds the client's connection and retry parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration // per-request timeout
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // backoff = base * 2^attempt, capped
	BackoffCap  time.Duration
}

// Defaults fills unset fields with stock values.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Client is the typed marketplace API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     crypto.Signer
	limiter    *ratelimit.Limiter
	breaker    *ratelimit.Breaker
	cache      domain.ResponseCache
	logger     *slog.Logger

	// now and sleep are swappable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a marketplace client. cache may be nil to disable
// response caching.
func NewClient(cfg Config, signer crypto.Signer, limiter *ratelimit.Limiter, breaker *ratelimit.Breaker, respCache domain.ResponseCache, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
		limiter:    limiter,
		breaker:    breaker,
		cache:      respCache,
		logger:     logger.With(slog.String("component", "dmarket_client")),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// callOpts selects the per-endpoint policy for do.
type callOpts struct {
	class        ratelimit.Class
	tier         domain.CacheTier
	cacheable    bool
	forceRefresh bool
}

// do executes one pipeline call and returns the raw response body. Cacheable
// responses are stored under the normalized request key; a force-refresh
// call still populates the cache so subsequent callers benefit.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, opts callOpts) ([]byte, error) {
	key := cache.Key(method, path, params)

	if opts.cacheable && !opts.forceRefresh && c.cache != nil {
		if val, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "cache read failed",
				slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			return val, nil
		}
	}

	var bodyJSON []byte
	if body != nil {
		var err error
		if bodyJSON, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("dmarket: marshal request body: %w", err)
		}
	}

	fullPath := path
	if q := cache.Canonical(params); q != "" {
		fullPath = path + "?" + q
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.breaker.Allow(opts.class); err != nil {
			return nil, err
		}
		if err := c.limiter.Acquire(ctx, opts.class); err != nil {
			return nil, err
		}

		respBody, retryAfter, err := c.send(ctx, method, fullPath, bodyJSON)
		if err == nil {
			c.breaker.RecordSuccess(opts.class)
			if opts.cacheable && c.cache != nil {
				if cerr := c.cache.Set(ctx, key, respBody, opts.tier); cerr != nil {
					c.logger.WarnContext(ctx, "cache write failed",
						slog.String("key", key), slog.String("error", cerr.Error()))
				}
			}
			return respBody, nil
		}

		c.breaker.RecordFailure(opts.class)
		lastErr = err
		if !domain.Retryable(err) || attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.backoff(attempt)
		// A server-provided Retry-After overrides a smaller computed backoff.
		if retryAfter > delay {
			delay = retryAfter
		}
		c.logger.DebugContext(ctx, "retrying request",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, fmt.Errorf("dmarket: %s %s: %w", method, path, serr)
		}
	}

	return nil, fmt.Errorf("dmarket: %s %s: %w", method, path, lastErr)
}

// send performs a single signed HTTP exchange. On 429 it also returns the
// server's Retry-After as a duration (zero when absent).
func (c *Client) send(ctx context.Context, method, fullPath string, body []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+fullPath, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w: %v", domain.ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	headers, err := crypto.AuthHeaders(c.signer, c.cfg.APIKey, c.now().Unix(), method, fullPath, string(body))
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w: %v", domain.ErrTransport, err)
	}

	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()), err
	}
	return respBody, 0, nil
}

// backoff returns the exponential delay for a retry attempt.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << attempt
	if d > c.cfg.BackoffCap || d <= 0 {
		return c.cfg.BackoffCap
	}
	return d
}

// classifyStatus maps a non-2xx status to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	excerpt := string(body)
	if len(excerpt) > 256 {
		excerpt = excerpt[:256]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429: %w: %s", domain.ErrRateLimited, excerpt)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("HTTP %d: %w: %s", status, domain.ErrAuth, excerpt)
	case status >= 500:
		return fmt.Errorf("HTTP %d: %w: %s", status, domain.ErrServer, excerpt)
	default:
		return fmt.Errorf("HTTP %d: %w: %s", status, domain.ErrClient, excerpt)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// decode unmarshals a response body, classifying shape drift loudly as
// domain.ErrSchemaMismatch so it is never confused with a request failure.
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaMismatch, err)
	}
	return nil
}

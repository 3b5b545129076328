// Package steammarket is the secondary price-reference client: one
// unauthenticated endpoint returning the lowest listed price and 24h volume
// for a single item name. It is rate-limited only by convention upstream, so
// it runs behind a deliberately conservative limiter window plus a
// token-bucket pacer, and the same circuit-breaker machinery as the primary
// marketplace.
package steammarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/cache"
	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

const priceOverviewPath = "/market/priceoverview"

// appIDs maps marketplace game IDs to the reference source's application
// IDs.
var appIDs = map[domain.Game]string{
	"a8db": "730", // csgo
	"9a92": "570", // dota2
	"rust": "252490",
}

// Config holds connection parameters for the reference client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// PerMinute is the informal request budget (default 30).
	PerMinute int
}

// Client fetches reference prices.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *ratelimit.Breaker
	pacer      *ratelimit.Pacer
	cache      domain.ResponseCache
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a reference-source client. cache may be nil.
func NewClient(cfg Config, limiter *ratelimit.Limiter, breaker *ratelimit.Breaker, respCache domain.ResponseCache, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		breaker:    breaker,
		pacer:      ratelimit.NewPacer(cfg.PerMinute),
		cache:      respCache,
		logger:     logger.With(slog.String("component", "steammarket_client")),
		now:        time.Now,
	}
}

// priceOverviewResponse is the wire shape. Prices arrive as display strings
// ("$13.05"); they are converted to integer minor units at this boundary and
// stay integer everywhere else.
type priceOverviewResponse struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	Volume      string `json:"volume"`
}

// GetPriceReference returns the reference price for one title.
func (c *Client) GetPriceReference(ctx context.Context, game domain.Game, title string) (domain.PriceReference, error) {
	appID, ok := appIDs[game]
	if !ok {
		return domain.PriceReference{}, fmt.Errorf("steammarket: no app id for game %s: %w", game, domain.ErrClient)
	}

	params := url.Values{}
	params.Set("appid", appID)
	params.Set("currency", "1") // USD
	params.Set("market_hash_name", title)

	key := cache.Key(http.MethodGet, priceOverviewPath, params)
	if c.cache != nil {
		if val, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var ref domain.PriceReference
			if jerr := json.Unmarshal(val, &ref); jerr == nil {
				return ref, nil
			}
		}
	}

	if err := c.breaker.Allow(ratelimit.ClassReference); err != nil {
		return domain.PriceReference{}, err
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return domain.PriceReference{}, err
	}
	if err := c.limiter.Acquire(ctx, ratelimit.ClassReference); err != nil {
		return domain.PriceReference{}, err
	}

	ref, err := c.fetch(ctx, params, game, title)
	if err != nil {
		c.breaker.RecordFailure(ratelimit.ClassReference)
		return domain.PriceReference{}, err
	}
	c.breaker.RecordSuccess(ratelimit.ClassReference)

	if c.cache != nil {
		if blob, jerr := json.Marshal(ref); jerr == nil {
			if cerr := c.cache.Set(ctx, key, blob, domain.TierMedium); cerr != nil {
				c.logger.WarnContext(ctx, "cache write failed",
					slog.String("title", title), slog.String("error", cerr.Error()))
			}
		}
	}
	return ref, nil
}

func (c *Client) fetch(ctx context.Context, params url.Values, game domain.Game, title string) (domain.PriceReference, error) {
	u := c.cfg.BaseURL + priceOverviewPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PriceReference{}, fmt.Errorf("steammarket: create request: %w: %v", domain.ErrTransport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceReference{}, fmt.Errorf("steammarket: %w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceReference{}, fmt.Errorf("steammarket: read response: %w: %v", domain.ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.PriceReference{}, fmt.Errorf("steammarket: HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return domain.PriceReference{}, fmt.Errorf("steammarket: HTTP %d: %w", resp.StatusCode, domain.ErrServer)
	case resp.StatusCode != http.StatusOK:
		return domain.PriceReference{}, fmt.Errorf("steammarket: HTTP %d: %w", resp.StatusCode, domain.ErrClient)
	}

	var pov priceOverviewResponse
	if err := json.Unmarshal(body, &pov); err != nil {
		return domain.PriceReference{}, fmt.Errorf("steammarket: %w: %v", domain.ErrSchemaMismatch, err)
	}
	if !pov.Success {
		return domain.PriceReference{}, fmt.Errorf("steammarket: %q/%s: %w", title, game, domain.ErrNotFound)
	}

	lowest, err := parseDisplayPrice(pov.LowestPrice)
	if err != nil {
		return domain.PriceReference{}, fmt.Errorf("steammarket: %q: %w: %v", title, domain.ErrSchemaMismatch, err)
	}
	volume, _ := parseVolume(pov.Volume)

	return domain.PriceReference{
		Title:       title,
		LowestPrice: lowest,
		Volume24h:   volume,
		FetchedAt:   c.now().UTC(),
	}, nil
}

// parseDisplayPrice converts "$13.05" to 1305 minor units without going
// through floating point.
func parseDisplayPrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	whole, frac, found := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %v", s, err)
	}
	var cents int64
	if found {
		switch len(frac) {
		case 1:
			frac += "0"
		case 2:
		default:
			return 0, fmt.Errorf("price %q: bad fraction", s)
		}
		if cents, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return 0, fmt.Errorf("price %q: %v", s, err)
		}
	}
	return units*100 + cents, nil
}

// parseVolume converts "1,234" to 1234.
func parseVolume(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

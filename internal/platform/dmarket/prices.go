package dmarket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

const (
	aggregatedPricesPath = "/price-aggregator/v1/aggregated-prices"
	lastSalesPath        = "/trade-aggregator/v1/last-sales"
)

// aggregatedBatchMax is the upstream cap on titles per aggregated-prices
// call.
const aggregatedBatchMax = 100

// GetAggregatedPrices returns per-title best bid/ask snapshots. Title lists
// longer than the upstream batch cap are split into multiple calls.
func (c *Client) GetAggregatedPrices(ctx context.Context, game domain.Game, titles []string) ([]domain.AggregatedPriceSnapshot, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	snapshots := make([]domain.AggregatedPriceSnapshot, 0, len(titles))
	for start := 0; start < len(titles); start += aggregatedBatchMax {
		end := min(start+aggregatedBatchMax, len(titles))
		batch, err := c.aggregatedBatch(ctx, game, titles[start:end])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, batch...)
	}
	return snapshots, nil
}

func (c *Client) aggregatedBatch(ctx context.Context, game domain.Game, titles []string) ([]domain.AggregatedPriceSnapshot, error) {
	params := url.Values{}
	for _, t := range titles {
		params.Add("Titles", t)
	}

	body, err := c.do(ctx, http.MethodGet, aggregatedPricesPath, params, nil, callOpts{
		class:     ratelimit.ClassMarket,
		tier:      domain.TierMedium,
		cacheable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dmarket: aggregated prices: %w", err)
	}

	var resp aggregatedPricesResponse
	if err := decode(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: aggregated prices: %w", err)
	}

	fetchedAt := c.now()
	out := make([]domain.AggregatedPriceSnapshot, 0, len(resp.AggregatedTitles))
	for _, at := range resp.AggregatedTitles {
		snap, err := at.toDomain(game, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("dmarket: aggregated prices: %w: %v", domain.ErrSchemaMismatch, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetSalesHistory returns recent sales for one title.
func (c *Client) GetSalesHistory(ctx context.Context, game domain.Game, title string) ([]domain.SaleRecord, error) {
	params := url.Values{}
	params.Set("gameId", string(game))
	params.Set("title", title)

	body, err := c.do(ctx, http.MethodGet, lastSalesPath, params, nil, callOpts{
		class:     ratelimit.ClassMarket,
		tier:      domain.TierLong,
		cacheable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dmarket: sales history %q: %w", title, err)
	}

	var resp lastSalesResponse
	if err := decode(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: sales history %q: %w", title, err)
	}

	records := make([]domain.SaleRecord, 0, len(resp.Sales))
	for _, s := range resp.Sales {
		price, err := parseMinorUnits(s.Price)
		if err != nil {
			return nil, fmt.Errorf("dmarket: sales history %q: %w: %v", title, domain.ErrSchemaMismatch, err)
		}
		records = append(records, domain.SaleRecord{
			Title:  title,
			Price:  price,
			SoldAt: time.Unix(s.Date, 0).UTC(),
		})
	}
	return records, nil
}

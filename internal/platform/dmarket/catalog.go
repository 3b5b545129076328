package dmarket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

const marketItemsPath = "/exchange/v1/market/items"

// defaultPageSize is the listing page size requested when the caller's
// filters leave it unset.
const defaultPageSize = 100

// ListCatalog fetches one page of marketplace listings for a game. Pass the
// previous page's cursor to continue; an empty returned cursor means the end
// of the catalog. Pagination is cursor-based only — offsets skew under
// concurrent writes on the server side.
func (c *Client) ListCatalog(ctx context.Context, game domain.Game, filters domain.ListingFilters, cursor string) (domain.CatalogPage, error) {
	return c.listCatalog(ctx, game, filters, cursor, false)
}

// ListCatalogFresh is ListCatalog with the cache bypassed (the response
// still populates it).
func (c *Client) ListCatalogFresh(ctx context.Context, game domain.Game, filters domain.ListingFilters, cursor string) (domain.CatalogPage, error) {
	return c.listCatalog(ctx, game, filters, cursor, true)
}

func (c *Client) listCatalog(ctx context.Context, game domain.Game, filters domain.ListingFilters, cursor string, forceRefresh bool) (domain.CatalogPage, error) {
	params := url.Values{}
	params.Set("gameId", string(game))
	params.Set("currency", "USD")

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	params.Set("limit", strconv.Itoa(limit))

	if filters.PriceFrom > 0 {
		params.Set("priceFrom", strconv.FormatInt(filters.PriceFrom, 10))
	}
	if filters.PriceTo > 0 {
		params.Set("priceTo", strconv.FormatInt(filters.PriceTo, 10))
	}
	if filters.Title != "" {
		params.Set("title", filters.Title)
	}
	if filters.OrderBy != "" {
		params.Set("orderBy", filters.OrderBy)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.do(ctx, http.MethodGet, marketItemsPath, params, nil, callOpts{
		class:        ratelimit.ClassMarket,
		tier:         domain.TierShort,
		cacheable:    true,
		forceRefresh: forceRefresh,
	})
	if err != nil {
		return domain.CatalogPage{}, fmt.Errorf("dmarket: list catalog %s: %w", game, err)
	}

	var resp marketItemsResponse
	if err := decode(body, &resp); err != nil {
		return domain.CatalogPage{}, fmt.Errorf("dmarket: list catalog %s: %w", game, err)
	}

	page := domain.CatalogPage{
		Listings: make([]domain.Listing, 0, len(resp.Objects)),
		Cursor:   resp.Cursor,
		Total:    resp.Total,
	}
	for _, obj := range resp.Objects {
		listing, err := obj.toDomain()
		if err != nil {
			return domain.CatalogPage{}, fmt.Errorf("dmarket: list catalog %s: %w: %v",
				game, domain.ErrSchemaMismatch, err)
		}
		page.Listings = append(page.Listings, listing)
	}
	return page, nil
}

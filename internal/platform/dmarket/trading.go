package dmarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dmarketbot/internal/cache"
	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

const (
	targetCreatePath = "/marketplace-api/v1/user-targets/create"
	targetDeletePath = "/marketplace-api/v1/user-targets/delete"
	offerCreatePath  = "/marketplace-api/v1/user-offers/create"
)

// CreateBuyIntent places a standing buy order for a title at the given price
// (minor units) and returns its ID. The balance cache is invalidated because
// the marketplace locks funds immediately.
func (c *Client) CreateBuyIntent(ctx context.Context, game domain.Game, title string, price int64, amount int) (string, error) {
	if amount <= 0 {
		amount = 1
	}
	req := targetCreateRequest{
		GameID: string(game),
		Targets: []targetPayload{{
			Title:  title,
			Amount: amount,
			Price:  pricePayload{Amount: price, Currency: "USD"},
		}},
	}

	body, err := c.do(ctx, http.MethodPost, targetCreatePath, nil, req, callOpts{
		class: ratelimit.ClassTrading,
	})
	if err != nil {
		return "", fmt.Errorf("dmarket: create buy intent %q: %w", title, err)
	}

	var resp targetCreateResponse
	if err := decode(body, &resp); err != nil {
		return "", fmt.Errorf("dmarket: create buy intent %q: %w", title, err)
	}
	if len(resp.Result) == 0 {
		return "", fmt.Errorf("dmarket: create buy intent %q: %w: empty result", title, domain.ErrSchemaMismatch)
	}
	if r := resp.Result[0]; r.Error != "" {
		return "", fmt.Errorf("dmarket: create buy intent %q rejected: %s: %w", title, r.Error, domain.ErrClient)
	}

	c.invalidateAccountState(ctx)
	return resp.Result[0].TargetID, nil
}

// CancelBuyIntent withdraws a standing buy order.
func (c *Client) CancelBuyIntent(ctx context.Context, targetID string) error {
	req := targetDeleteRequest{Targets: []targetRef{{TargetID: targetID}}}

	if _, err := c.do(ctx, http.MethodPost, targetDeletePath, nil, req, callOpts{
		class: ratelimit.ClassTrading,
	}); err != nil {
		return fmt.Errorf("dmarket: cancel buy intent %s: %w", targetID, err)
	}

	c.invalidateAccountState(ctx)
	return nil
}

// CreateSellOffer lists an inventory item for sale at the given price (minor
// units) and returns the offer ID.
func (c *Client) CreateSellOffer(ctx context.Context, itemID string, price int64) (string, error) {
	req := offerCreateRequest{
		Offers: []offerPayload{{
			AssetID: itemID,
			Price:   pricePayload{Amount: price, Currency: "USD"},
		}},
	}

	body, err := c.do(ctx, http.MethodPost, offerCreatePath, nil, req, callOpts{
		class: ratelimit.ClassTrading,
	})
	if err != nil {
		return "", fmt.Errorf("dmarket: create sell offer %s: %w", itemID, err)
	}

	var resp offerCreateResponse
	if err := decode(body, &resp); err != nil {
		return "", fmt.Errorf("dmarket: create sell offer %s: %w", itemID, err)
	}
	if len(resp.Result) == 0 {
		return "", fmt.Errorf("dmarket: create sell offer %s: %w: empty result", itemID, domain.ErrSchemaMismatch)
	}
	if r := resp.Result[0]; r.Error != "" {
		return "", fmt.Errorf("dmarket: create sell offer %s rejected: %s: %w", itemID, r.Error, domain.ErrClient)
	}

	c.invalidateAccountState(ctx)
	return resp.Result[0].OfferID, nil
}

// invalidateAccountState drops cached balance and inventory after a trading
// mutation.
func (c *Client) invalidateAccountState(ctx context.Context) {
	if c.cache == nil {
		return
	}
	for _, path := range []string{balancePath, inventoryPath} {
		if err := c.cache.Invalidate(ctx, cache.EndpointPrefix(path)); err != nil {
			c.logger.WarnContext(ctx, "cache invalidation failed",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

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

const (
	balancePath   = "/account/v1/balance"
	inventoryPath = "/marketplace-api/v1/user-inventory"
)

// GetBalance returns the account balance in minor units.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.do(ctx, http.MethodGet, balancePath, nil, nil, callOpts{
		class:     ratelimit.ClassAccount,
		tier:      domain.TierShort,
		cacheable: true,
	})
	if err != nil {
		return domain.Balance{}, fmt.Errorf("dmarket: get balance: %w", err)
	}

	var resp balanceResponse
	if err := decode(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("dmarket: get balance: %w", err)
	}

	available, err := parseMinorUnits(resp.USD)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("dmarket: get balance: %w: %v", domain.ErrSchemaMismatch, err)
	}
	locked, err := parseMinorUnits(resp.USDLocked)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("dmarket: get balance: %w: %v", domain.ErrSchemaMismatch, err)
	}
	return domain.Balance{Available: available, Locked: locked}, nil
}

// ListInventory returns the account's items for a game.
func (c *Client) ListInventory(ctx context.Context, game domain.Game, limit int) ([]domain.InventoryItem, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	params := url.Values{}
	params.Set("GameID", string(game))
	params.Set("Limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, inventoryPath, params, nil, callOpts{
		class:     ratelimit.ClassAccount,
		tier:      domain.TierShort,
		cacheable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dmarket: list inventory %s: %w", game, err)
	}

	var resp inventoryResponse
	if err := decode(body, &resp); err != nil {
		return nil, fmt.Errorf("dmarket: list inventory %s: %w", game, err)
	}

	items := make([]domain.InventoryItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, domain.InventoryItem{
			ItemID:     it.ItemID,
			Title:      it.Title,
			Game:       domain.Game(it.GameID),
			Tradable:   it.Extra["tradable"] != "false",
			Attributes: it.Extra,
		})
	}
	return items, nil
}

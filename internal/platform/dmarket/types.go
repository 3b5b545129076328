package dmarket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// Wire DTOs for the marketplace API. Prices arrive as decimal strings of
// minor-currency units keyed by currency code; conversion failures are
// classified as schema mismatches by the callers in client.go.

// apiPrice is the per-currency price bag, e.g. {"USD": "1050"}.
type apiPrice map[string]string

// usd returns the USD amount in minor units. ok=false when the currency is
// absent; a present but unparseable amount is an error.
func (p apiPrice) usd() (int64, bool, error) {
	raw, ok := p["USD"]
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("price %q is not integer minor units", raw)
	}
	return v, true, nil
}

type apiItem struct {
	ItemID         string            `json:"itemId"`
	Title          string            `json:"title"`
	GameID         string            `json:"gameId"`
	Price          apiPrice          `json:"price"`
	SuggestedPrice apiPrice          `json:"suggestedPrice"`
	Extra          map[string]string `json:"extra"`
}

func (it apiItem) toDomain() (domain.Listing, error) {
	price, ok, err := it.Price.usd()
	if err != nil {
		return domain.Listing{}, fmt.Errorf("item %s: %w", it.ItemID, err)
	}
	if !ok {
		return domain.Listing{}, fmt.Errorf("item %s: missing USD price", it.ItemID)
	}
	suggested, _, err := it.SuggestedPrice.usd()
	if err != nil {
		return domain.Listing{}, fmt.Errorf("item %s: %w", it.ItemID, err)
	}
	return domain.Listing{
		ItemID:         it.ItemID,
		Title:          it.Title,
		Game:           domain.Game(it.GameID),
		Price:          price,
		SuggestedPrice: suggested,
		Attributes:     it.Extra,
	}, nil
}

type marketItemsResponse struct {
	Objects []apiItem `json:"objects"`
	Cursor  string    `json:"cursor"`
	Total   int64     `json:"total"`
}

type balanceResponse struct {
	USD       string `json:"usd"`
	USDLocked string `json:"usdLocked"`
}

type aggregatedTitle struct {
	Title  string `json:"MarketHashName"`
	Offers struct {
		BestPrice string `json:"BestPrice"`
		Count     int    `json:"Count"`
	} `json:"Offers"`
	Orders struct {
		BestPrice string `json:"BestPrice"`
		Count     int    `json:"Count"`
	} `json:"Orders"`
}

type aggregatedPricesResponse struct {
	AggregatedTitles []aggregatedTitle `json:"AggregatedTitles"`
}

func (at aggregatedTitle) toDomain(game domain.Game, fetchedAt time.Time) (domain.AggregatedPriceSnapshot, error) {
	ask, err := parseMinorUnits(at.Offers.BestPrice)
	if err != nil {
		return domain.AggregatedPriceSnapshot{}, fmt.Errorf("title %q best offer: %w", at.Title, err)
	}
	bid, err := parseMinorUnits(at.Orders.BestPrice)
	if err != nil {
		return domain.AggregatedPriceSnapshot{}, fmt.Errorf("title %q best order: %w", at.Title, err)
	}
	return domain.AggregatedPriceSnapshot{
		Title:     at.Title,
		Game:      game,
		BestAsk:   ask,
		BestBid:   bid,
		AskCount:  at.Offers.Count,
		BidCount:  at.Orders.Count,
		FetchedAt: fetchedAt,
	}, nil
}

type lastSalesResponse struct {
	Sales []struct {
		Price string `json:"price"`
		Date  int64  `json:"date"`
	} `json:"sales"`
}

// pricePayload is the request-side price shape (integer minor units).
type pricePayload struct {
	Amount   int64  `json:"Amount"`
	Currency string `json:"Currency"`
}

type targetPayload struct {
	Title  string       `json:"Title"`
	Amount int          `json:"Amount"`
	Price  pricePayload `json:"Price"`
}

type targetCreateRequest struct {
	GameID  string          `json:"GameID"`
	Targets []targetPayload `json:"Targets"`
}

type targetResult struct {
	TargetID string `json:"TargetID"`
	Status   string `json:"Status"`
	Error    string `json:"Error"`
}

type targetCreateResponse struct {
	Result []targetResult `json:"Result"`
}

type targetRef struct {
	TargetID string `json:"TargetID"`
}

type targetDeleteRequest struct {
	Targets []targetRef `json:"Targets"`
}

type inventoryResponse struct {
	Items []apiItem `json:"Items"`
}

type offerPayload struct {
	AssetID string       `json:"AssetID"`
	Price   pricePayload `json:"Price"`
}

type offerCreateRequest struct {
	Offers []offerPayload `json:"Offers"`
}

type offerResult struct {
	OfferID string `json:"OfferID"`
	Status  string `json:"Status"`
	Error   string `json:"Error"`
}

type offerCreateResponse struct {
	Result []offerResult `json:"Result"`
}

// parseMinorUnits parses a decimal string of minor units; empty means zero.
func parseMinorUnits(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not integer minor units", s)
	}
	return v, nil
}

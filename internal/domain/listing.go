package domain

import "time"

// Game identifies one independent item catalog on the marketplace
// (e.g. "csgo", "dota2", "rust").
type Game string

// Listing is one tradeable item instance on the marketplace. Prices are
// integer minor-currency units (cents); they are never converted to floating
// point for comparison or storage. A Listing is immutable once returned —
// a fresh fetch supersedes a stale one rather than mutating it.
type Listing struct {
	ItemID         string
	Title          string
	Game           Game
	Price          int64 // minor units
	SuggestedPrice int64 // minor units, 0 when the API provides none
	// Attributes is the game-specific attribute bag (exterior, rarity,
	// float value, ...). Values are kept as strings verbatim from the API.
	Attributes map[string]string
}

// CatalogPage is one page of marketplace listings for a game. Cursor is the
// opaque token for the next page; empty means the end of the catalog. Total
// is advisory and may be approximate.
type CatalogPage struct {
	Listings []Listing
	Cursor   string
	Total    int64
}

// ListingFilters narrows a catalog query. Zero values mean "no bound".
type ListingFilters struct {
	PriceFrom int64 // minor units, inclusive
	PriceTo   int64 // minor units, inclusive
	Title     string
	OrderBy   string
	Limit     int
}

// AggregatedPriceSnapshot is the per-title best bid/ask with counts of
// competing buy/sell intents, used to estimate achievable profit.
type AggregatedPriceSnapshot struct {
	Title     string
	Game      Game
	BestBid   int64 // minor units
	BestAsk   int64 // minor units
	BidCount  int
	AskCount  int
	FetchedAt time.Time
}

// SaleRecord is one historical sale of a title.
type SaleRecord struct {
	Title  string
	Price  int64 // minor units
	SoldAt time.Time
}

// Balance is the account balance on the marketplace, in minor units.
type Balance struct {
	Available int64
	Locked    int64
}

// PriceReference is the secondary source's view of one title: lowest listed
// price and 24h sale volume.
type PriceReference struct {
	Title       string
	LowestPrice int64 // minor units
	Volume24h   int64
	FetchedAt   time.Time
}

// BuyIntent is a standing buy order ("target") on the marketplace.
type BuyIntent struct {
	ID        string
	Game      Game
	Title     string
	Price     int64 // minor units
	Amount    int
	CreatedAt time.Time
}

// SellOffer is a listing created from the account's own inventory.
type SellOffer struct {
	ID        string
	ItemID    string
	Price     int64 // minor units
	CreatedAt time.Time
}

// InventoryItem is one item held by the account, tradable or not.
type InventoryItem struct {
	ItemID     string
	Title      string
	Game       Game
	Tradable   bool
	Attributes map[string]string
}

package domain

import "time"

// ScanLevel selects one of five predefined profit/price threshold policies,
// ordered from highest-volume/lowest-margin to lowest-volume/highest-margin.
// Level selection changes thresholds only, never the detection algorithm.
type ScanLevel int

const (
	LevelVolume ScanLevel = iota + 1 // high volume, thin margins
	LevelBudget
	LevelStandard
	LevelPremium
	LevelRare // low volume, fat margins
)

// String returns the level's configuration name.
func (l ScanLevel) String() string {
	switch l {
	case LevelVolume:
		return "volume"
	case LevelBudget:
		return "budget"
	case LevelStandard:
		return "standard"
	case LevelPremium:
		return "premium"
	case LevelRare:
		return "rare"
	default:
		return "unknown"
	}
}

// LevelFromName parses a configuration level name.
func LevelFromName(name string) (ScanLevel, bool) {
	switch name {
	case "volume":
		return LevelVolume, true
	case "budget":
		return LevelBudget, true
	case "standard":
		return LevelStandard, true
	case "premium":
		return LevelPremium, true
	case "rare":
		return LevelRare, true
	default:
		return 0, false
	}
}

// LevelPolicy is the threshold tuple attached to a scan level.
type LevelPolicy struct {
	Level            ScanLevel
	MinProfitPercent float64
	PriceFrom        int64 // minor units, inclusive
	PriceTo          int64 // minor units, inclusive
}

// Contains reports whether a listing price falls inside the policy's range.
func (p LevelPolicy) Contains(price int64) bool {
	return price >= p.PriceFrom && price <= p.PriceTo
}

// Opportunity is a detected arbitrage candidate: a listing whose estimated
// resale, net of marketplace commission, clears the active level's
// thresholds. Created exactly once per qualifying listing per scan pass and
// never mutated afterwards.
type Opportunity struct {
	Listing       Listing
	SellPrice     int64 // estimated gross sell price, minor units
	NetSellPrice  int64 // sell price net of commission, minor units
	Profit        int64 // NetSellPrice - Listing.Price, minor units
	ProfitPercent float64
	Game          Game
	Level         ScanLevel
	DetectedAt    time.Time
}

// EventKind distinguishes notification queue payloads.
type EventKind string

const (
	EventOpportunity EventKind = "opportunity"  // newly detected candidate
	EventTradeFilled EventKind = "trade_filled" // buy/sell intent filled
	EventTradeFailed EventKind = "trade_failed" // intent rejected or expired
	EventDegraded    EventKind = "degraded"     // persistent upstream failure
)

// Event is one entry in the notification queue. Exactly one of Opportunity
// or Detail is meaningful depending on Kind.
type Event struct {
	Kind        EventKind
	Game        Game
	Opportunity *Opportunity
	Detail      string
	At          time.Time
}

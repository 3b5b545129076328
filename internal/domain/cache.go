package domain

import (
	"context"
	"time"
)

// CacheTier selects the time-to-live class of a cached response.
type CacheTier int

const (
	// TierShort holds volatile data: live listings, balance.
	TierShort CacheTier = iota
	// TierMedium holds aggregated prices.
	TierMedium
	// TierLong holds near-static data: sales history, metadata.
	TierLong
)

// String returns the tier's configuration name.
func (t CacheTier) String() string {
	switch t {
	case TierShort:
		return "short"
	case TierMedium:
		return "medium"
	case TierLong:
		return "long"
	default:
		return "unknown"
	}
}

// CacheTTLs maps each tier to its time-to-live.
type CacheTTLs struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// DefaultCacheTTLs returns the stock tier TTLs.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Short:  30 * time.Second,
		Medium: 5 * time.Minute,
		Long:   30 * time.Minute,
	}
}

// For returns the TTL for a tier.
func (c CacheTTLs) For(tier CacheTier) time.Duration {
	switch tier {
	case TierShort:
		return c.Short
	case TierMedium:
		return c.Medium
	default:
		return c.Long
	}
}

// ResponseCache memoizes decoded API responses keyed by a normalized request
// hash. An expired entry reads as a miss. Implementations must be safe for
// concurrent use.
type ResponseCache interface {
	// Get returns the cached value for key, or ok=false on miss/expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the tier's TTL.
	Set(ctx context.Context, key string, value []byte, tier CacheTier) error
	// Invalidate drops all entries whose key starts with prefix.
	Invalidate(ctx context.Context, prefix string) error
}

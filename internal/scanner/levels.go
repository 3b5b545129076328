// Package scanner runs per-game catalog sweeps, detects arbitrage
// opportunities against level thresholds, and adapts its pace to observed
// market volatility. Scan progress is checkpointed so a restart resumes
// from the stored cursor.
package scanner

import "github.com/alanyoungcy/dmarketbot/internal/domain"

// DefaultPolicies returns the five built-in level policies, ordered from
// high-volume/thin-margin to low-volume/fat-margin. Prices are minor units.
func DefaultPolicies() map[domain.ScanLevel]domain.LevelPolicy {
	return map[domain.ScanLevel]domain.LevelPolicy{
		domain.LevelVolume: {
			Level:            domain.LevelVolume,
			MinProfitPercent: 3,
			PriceFrom:        50,
			PriceTo:          500,
		},
		domain.LevelBudget: {
			Level:            domain.LevelBudget,
			MinProfitPercent: 5,
			PriceFrom:        100,
			PriceTo:          2_000,
		},
		domain.LevelStandard: {
			Level:            domain.LevelStandard,
			MinProfitPercent: 5,
			PriceFrom:        100,
			PriceTo:          10_000,
		},
		domain.LevelPremium: {
			Level:            domain.LevelPremium,
			MinProfitPercent: 8,
			PriceFrom:        10_000,
			PriceTo:          100_000,
		},
		domain.LevelRare: {
			Level:            domain.LevelRare,
			MinProfitPercent: 12,
			PriceFrom:        100_000,
			PriceTo:          5_000_000,
		},
	}
}

// PolicyFor returns the policy for level, falling back to the standard
// level when the level is unknown.
func PolicyFor(policies map[domain.ScanLevel]domain.LevelPolicy, level domain.ScanLevel) domain.LevelPolicy {
	if p, ok := policies[level]; ok {
		return p
	}
	return policies[domain.LevelStandard]
}

package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := newFakeClock()
	b := NewBreaker(cfg)
	b.now = clk.Now
	return b, clk
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, BaseCooldown: 30 * time.Second, MaxCooldown: time.Minute})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow(ClassMarket))
		b.RecordFailure(ClassMarket)
	}
	assert.Equal(t, StateClosed, b.StateOf(ClassMarket))

	require.NoError(t, b.Allow(ClassMarket))
	b.RecordFailure(ClassMarket)
	assert.Equal(t, StateOpen, b.StateOf(ClassMarket))

	err := b.Allow(ClassMarket)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen), "got %v", err)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, BaseCooldown: 30 * time.Second, MaxCooldown: time.Minute})

	b.RecordFailure(ClassMarket)
	b.RecordFailure(ClassMarket)
	b.RecordSuccess(ClassMarket)
	b.RecordFailure(ClassMarket)
	b.RecordFailure(ClassMarket)

	// Non-consecutive failures never reach the threshold.
	assert.Equal(t, StateClosed, b.StateOf(ClassMarket))
}

func TestBreakerHalfOpenAllowsExactlyOneProbe(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: 30 * time.Second, MaxCooldown: time.Minute})

	b.RecordFailure(ClassMarket)
	require.Equal(t, StateOpen, b.StateOf(ClassMarket))

	// Cooldown elapses: one probe passes, a second caller is rejected.
	clk.Sleep(nil, 31*time.Second)
	require.NoError(t, b.Allow(ClassMarket))
	assert.Equal(t, StateHalfOpen, b.StateOf(ClassMarket))
	err := b.Allow(ClassMarket)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen), "got %v", err)

	// Probe success closes the circuit.
	b.RecordSuccess(ClassMarket)
	assert.Equal(t, StateClosed, b.StateOf(ClassMarket))
	assert.NoError(t, b.Allow(ClassMarket))
}

func TestBreakerFailedProbeReopensWithLongerCooldown(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: 30 * time.Second, MaxCooldown: 2 * time.Minute})

	b.RecordFailure(ClassMarket)

	// First probe fails: cooldown doubles to 60s.
	clk.Sleep(nil, 31*time.Second)
	require.NoError(t, b.Allow(ClassMarket))
	b.RecordFailure(ClassMarket)
	assert.Equal(t, StateOpen, b.StateOf(ClassMarket))

	// 31s later the doubled cooldown has not elapsed yet.
	clk.Sleep(nil, 31*time.Second)
	err := b.Allow(ClassMarket)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen), "got %v", err)

	// After the full 60s it half-opens again.
	clk.Sleep(nil, 30*time.Second)
	assert.NoError(t, b.Allow(ClassMarket))
}

func TestBreakerCooldownCapped(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: 30 * time.Second, MaxCooldown: time.Minute})

	b.RecordFailure(ClassMarket)
	for i := 0; i < 5; i++ {
		clk.Sleep(nil, 2*time.Minute)
		require.NoError(t, b.Allow(ClassMarket))
		b.RecordFailure(ClassMarket)
	}

	// Cooldown never exceeds the one-minute cap.
	clk.Sleep(nil, 61*time.Second)
	assert.NoError(t, b.Allow(ClassMarket))
}

func TestBreakerClassesAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: 30 * time.Second, MaxCooldown: time.Minute})

	b.RecordFailure(ClassTrading)
	assert.Equal(t, StateOpen, b.StateOf(ClassTrading))
	assert.NoError(t, b.Allow(ClassMarket))
}

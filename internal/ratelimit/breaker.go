package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// State is the circuit state for one endpoint class.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int
	// BaseCooldown is the first open period. Each reopen doubles it up to
	// MaxCooldown.
	BaseCooldown time.Duration
	MaxCooldown  time.Duration
}

// DefaultBreaker returns the stock breaker settings.
func DefaultBreaker() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	}
}

// circuit is the per-class breaker state, owned exclusively by the Breaker.
type circuit struct {
	state    State
	failures int
	openedAt time.Time
	cooldown time.Duration
	probing  bool // a half-open probe is in flight
}

// Breaker tracks consecutive failures per endpoint class and fails calls
// fast while a class's circuit is open. After the cooldown it lets exactly
// one probe through; the probe's outcome closes or reopens the circuit.
type Breaker struct {
	mu       sync.Mutex
	circuits map[Class]*circuit
	cfg      BreakerConfig
	now      func() time.Time
}

// NewBreaker creates a Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg = DefaultBreaker()
	}
	return &Breaker{
		circuits: make(map[Class]*circuit),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (b *Breaker) circuitFor(class Class) *circuit {
	if c, ok := b.circuits[class]; ok {
		return c
	}
	c := &circuit{state: StateClosed, cooldown: b.cfg.BaseCooldown}
	b.circuits[class] = c
	return c
}

// Allow reports whether a call for class may proceed. While open it fails
// with domain.ErrCircuitOpen until the cooldown elapses, at which point the
// circuit half-opens and exactly one caller gets through as the probe.
func (b *Breaker) Allow(class Class) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(class)
	switch c.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(c.openedAt) < c.cooldown {
			return fmt.Errorf("ratelimit: class %s open for %s: %w",
				class, c.cooldown, domain.ErrCircuitOpen)
		}
		c.state = StateHalfOpen
		c.probing = true
		return nil
	default: // StateHalfOpen
		if c.probing {
			return fmt.Errorf("ratelimit: class %s probing: %w", class, domain.ErrCircuitOpen)
		}
		c.probing = true
		return nil
	}
}

// RecordSuccess feeds a successful call outcome. A half-open probe success
// closes the circuit and resets the failure count and cooldown.
func (b *Breaker) RecordSuccess(class Class) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(class)
	c.failures = 0
	c.probing = false
	if c.state != StateClosed {
		c.state = StateClosed
		c.cooldown = b.cfg.BaseCooldown
	}
}

// RecordFailure feeds a failed call outcome. The circuit opens after the
// configured run of consecutive failures; a failed half-open probe reopens
// it with a doubled cooldown, capped at MaxCooldown.
func (b *Breaker) RecordFailure(class Class) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(class)
	c.failures++
	c.probing = false

	switch c.state {
	case StateHalfOpen:
		c.cooldown = min(c.cooldown*2, b.cfg.MaxCooldown)
		c.state = StateOpen
		c.openedAt = b.now()
	case StateClosed:
		if c.failures >= b.cfg.FailureThreshold {
			c.state = StateOpen
			c.openedAt = b.now()
			c.cooldown = b.cfg.BaseCooldown
		}
	}
}

// StateOf returns the current state for a class.
func (b *Breaker) StateOf(class Class) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(class).state
}

package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDefaultsToBaseWithoutSamples(t *testing.T) {
	w := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	assert.Equal(t, 60*time.Second, w.nextDelay())
}

func TestStablePricesKeepDelayNearBase(t *testing.T) {
	w := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	for i := 0; i < 5; i++ {
		w.observe(1000, 100, at)
	}
	assert.Equal(t, 60*time.Second, w.nextDelay())
}

func TestVolatilePricesShortenDelay(t *testing.T) {
	w := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	w.observe(500, 100, at)
	w.observe(1500, 100, at)
	w.observe(400, 100, at)
	w.observe(1600, 100, at)

	d := w.nextDelay()
	assert.Less(t, d, 60*time.Second)
	assert.GreaterOrEqual(t, d, 15*time.Second)
}

func TestDelayNeverLeavesBounds(t *testing.T) {
	w := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	// Extreme swings: cv far above anything 60s/(1+cv) keeps above 15s.
	w.observe(1, 100, at)
	w.observe(1_000_000, 100, at)
	w.observe(1, 100, at)
	assert.Equal(t, 15*time.Second, w.nextDelay())

	// A base above the max clamps down.
	w2 := newVolatilityWindow(10, 10*time.Minute, 15*time.Second, 300*time.Second, 60*time.Second)
	assert.Equal(t, 300*time.Second, w2.nextDelay())

	// A recovery floor above the max clamps down too.
	w3 := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 10*time.Minute)
	w3.observeEmpty()
	assert.Equal(t, 300*time.Second, w3.nextDelay())
}

func TestEmptyPassForcesRecoveryFloor(t *testing.T) {
	w := newVolatilityWindow(10, 120*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	w.observe(1000, 100, at)
	w.observe(1000, 100, at)

	w.observeEmpty()
	assert.Equal(t, 60*time.Second, w.nextDelay(), "empty pass pins the next delay to the floor")
	assert.Equal(t, 120*time.Second, w.nextDelay(), "recovery applies to a single delay")
}

func TestEmptyPassDoesNotFeedWindow(t *testing.T) {
	w := newVolatilityWindow(10, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	w.observe(1000, 100, at)
	w.observeEmpty()
	w.observe(1000, 100, at)

	assert.Len(t, w.samples, 2)
	assert.Zero(t, w.cv())
}

func TestWindowEvictsOldestSamples(t *testing.T) {
	w := newVolatilityWindow(3, 60*time.Second, 15*time.Second, 300*time.Second, 60*time.Second)
	at := time.Now()
	for i := 0; i < 5; i++ {
		w.observe(float64(1000+i), 100, at)
	}
	assert.Len(t, w.samples, 3)
	assert.Equal(t, float64(1002), w.samples[0].meanPrice)
}

package scanner

import (
	"math"
	"time"
)

// Interval bounds for the adaptive pass delay.
const (
	DefaultBaseInterval  = 60 * time.Second
	DefaultMinInterval   = 15 * time.Second
	DefaultMaxInterval   = 300 * time.Second
	DefaultRecoveryFloor = 60 * time.Second
)

// passSample is one completed sweep's price summary.
type passSample struct {
	meanPrice float64
	count     int
	at        time.Time
}

// volatilityWindow holds a rolling window of recent pass samples and derives
// the next inter-pass delay from their coefficient of variation: the more
// mean prices move between passes, the shorter the delay. Empty passes never
// enter the window; they force the next delay to the recovery floor instead,
// so one quiet (or silently broken) sweep cannot poison the statistics.
//
// Not safe for concurrent use; each scanner owns its window.
type volatilityWindow struct {
	samples []passSample
	size    int

	base          time.Duration
	min           time.Duration
	max           time.Duration
	recoveryFloor time.Duration

	recoverNext bool
}

func newVolatilityWindow(size int, base, min, max, floor time.Duration) *volatilityWindow {
	if size <= 0 {
		size = 10
	}
	if base <= 0 {
		base = DefaultBaseInterval
	}
	if min <= 0 {
		min = DefaultMinInterval
	}
	if max <= 0 {
		max = DefaultMaxInterval
	}
	if floor <= 0 {
		floor = DefaultRecoveryFloor
	}
	return &volatilityWindow{
		size:          size,
		base:          base,
		min:           min,
		max:           max,
		recoveryFloor: floor,
	}
}

// observe records a non-empty pass summary.
func (w *volatilityWindow) observe(meanPrice float64, count int, at time.Time) {
	if count <= 0 {
		return
	}
	w.samples = append(w.samples, passSample{meanPrice: meanPrice, count: count, at: at})
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
	w.recoverNext = false
}

// observeEmpty marks the last pass as empty.
func (w *volatilityWindow) observeEmpty() {
	w.recoverNext = true
}

// cv returns the coefficient of variation of the windowed mean prices.
// Fewer than two samples, or a zero mean, yields zero.
func (w *volatilityWindow) cv() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	var sum float64
	for _, s := range w.samples {
		sum += s.meanPrice
	}
	mean := sum / float64(len(w.samples))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, s := range w.samples {
		d := s.meanPrice - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(w.samples))) / mean
}

// nextDelay returns the delay to wait before the next pass, always within
// [min, max].
func (w *volatilityWindow) nextDelay() time.Duration {
	if w.recoverNext {
		w.recoverNext = false
		return w.clamp(w.recoveryFloor)
	}
	return w.clamp(time.Duration(float64(w.base) / (1 + w.cv())))
}

func (w *volatilityWindow) clamp(d time.Duration) time.Duration {
	if d < w.min {
		return w.min
	}
	if d > w.max {
		return w.max
	}
	return d
}

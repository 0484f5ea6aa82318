// Package precommit tracks, per price feed, an exponentially-weighted
// moving average of inter-update intervals and uses it to predict an
// imminent oracle tick — letting the scorer accept a candidate whose
// on-chain health factor still sits fractionally above the liquidation
// threshold (SPEC_FULL.md §4.5). The EMA itself follows the same smoothing
// idiom the teacher's pkg/util test suite exercised for moving-average-style
// AMM calculations (amm_test.go), generalized here from a price series to
// an inter-update-interval series.
package precommit

import (
	"sync"
	"time"
)

// FeedState is one price feed's EMA tracker.
type FeedState struct {
	mu sync.Mutex

	alpha       float64
	emaInterval float64
	samples     int
	lastUpdate  time.Time
}

// NewFeedState builds a FeedState with the given smoothing factor.
func NewFeedState(alpha float64) *FeedState {
	return &FeedState{alpha: alpha}
}

// Observe records a new update at observedAt, folding the interval since
// the previous update into the EMA. The first observation only seeds
// lastUpdate; it produces no interval sample.
func (f *FeedState) Observe(observedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.lastUpdate.IsZero() {
		interval := observedAt.Sub(f.lastUpdate).Seconds()
		if f.samples == 0 {
			f.emaInterval = interval
		} else {
			f.emaInterval = f.alpha*interval + (1-f.alpha)*f.emaInterval
		}
		f.samples++
	}
	f.lastUpdate = observedAt
}

// Samples returns how many interval observations have been folded in.
func (f *FeedState) Samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

// EMAIntervalSeconds returns the current smoothed inter-update interval.
func (f *FeedState) EMAIntervalSeconds() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emaInterval
}

// AgeSeconds returns how long it has been since the last observed update,
// as of now.
func (f *FeedState) AgeSeconds(now time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastUpdate.IsZero() {
		return 0
	}
	return now.Sub(f.lastUpdate).Seconds()
}

// Eligibility bundles the inputs §4.5 requires beyond the feed's own EMA
// state to decide precommit eligibility.
type Eligibility struct {
	MinSamples  int
	AgeFactor   float64
	GapBps      float64
	MinGapBps   float64
	HealthFactor float64
	HFMax       float64
	HFMargin    float64
}

// Eligible reports whether a candidate qualifies for precommit given this
// feed's current EMA state and the rest of the observed inputs.
func (f *FeedState) Eligible(now time.Time, e Eligibility) bool {
	f.mu.Lock()
	samples := f.samples
	ema := f.emaInterval
	var age float64
	if !f.lastUpdate.IsZero() {
		age = now.Sub(f.lastUpdate).Seconds()
	}
	f.mu.Unlock()

	if samples < e.MinSamples {
		return false
	}
	if age < e.AgeFactor*ema {
		return false
	}
	if e.GapBps < e.MinGapBps {
		return false
	}
	if e.HealthFactor < e.HFMax || e.HealthFactor > e.HFMax+e.HFMargin {
		return false
	}
	return true
}

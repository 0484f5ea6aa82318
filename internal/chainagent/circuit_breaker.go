package chainagent

import (
	"sync"
	"time"

	"github.com/blackhole-labs/liquidationd/internal/alert"
)

// CircuitBreaker tracks send attempts and errors within a rolling window
// and trips once attempts >= 5 and errors/attempts > failRateCap, per
// spec.md §4.3. Grounded on the teacher's CircuitBreaker (ErrorWindow/
// ErrorThreshold/LastErrors/RecordError/Reset/ErrorRate in
// specs/001-liquidity-repositioning/contracts/strategy_api.go), replacing
// its fixed error-count threshold with the spec's attempts-and-ratio rule
// and tracking total attempts alongside errors so the ratio can be computed.
type CircuitBreaker struct {
	mu sync.Mutex

	window      time.Duration
	failRateCap float64
	alerter     *alert.Throttled

	attempts []time.Time
	errors   []time.Time

	tripped bool
	nowFunc func() time.Time
}

// minAttemptsToTrip is spec.md §4.3's "attempts >= 5" floor — below this
// count the ratio is too noisy to act on.
const minAttemptsToTrip = 5

// NewCircuitBreaker builds a breaker evaluated over window with the given
// fail-rate cap. alerter may be nil in tests.
func NewCircuitBreaker(window time.Duration, failRateCap float64, alerter *alert.Throttled) *CircuitBreaker {
	return &CircuitBreaker{
		window:      window,
		failRateCap: failRateCap,
		alerter:     alerter,
		nowFunc:     time.Now,
	}
}

// RecordAttempt records one send attempt, isError true if it failed for a
// reason other than HF-recovered (spec.md §4.3: "HF-recovered reverts are
// not counted as errors"). Returns whether the breaker is now tripped.
func (cb *CircuitBreaker) RecordAttempt(isError bool) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cb.attempts = append(cb.attempts, now)
	if isError {
		cb.errors = append(cb.errors, now)
	}
	cb.prune(now)

	if len(cb.attempts) >= minAttemptsToTrip {
		rate := float64(len(cb.errors)) / float64(len(cb.attempts))
		if rate > cb.failRateCap {
			cb.tripped = true
			if cb.alerter != nil {
				cb.alerter.Fire("fail-rate-cap", "fail-rate circuit breaker tripped")
			}
		}
	}
	return cb.tripped
}

// Tripped reports whether the breaker has fired since the last Reset.
func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripped
}

// ErrorRate returns the current errors/attempts ratio within the window.
func (cb *CircuitBreaker) ErrorRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.attempts) == 0 {
		return 0
	}
	return float64(len(cb.errors)) / float64(len(cb.attempts))
}

// Reset clears accumulated attempts/errors and the tripped flag.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.attempts = nil
	cb.errors = nil
	cb.tripped = false
}

func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	cb.attempts = pruneBefore(cb.attempts, cutoff)
	cb.errors = pruneBefore(cb.errors, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

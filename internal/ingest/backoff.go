package ingest

import "time"

// pollBackoff tracks a consecutive-failure counter and the exponential
// delay that goes with it, shared by SubgraphPoller and MorphoPoller
// (SPEC_FULL.md §4.1's "5s -> 120s" schedule).
type pollBackoff struct {
	initial time.Duration
	max     time.Duration

	current      time.Duration
	consecutive  int
}

func newPollBackoff(initial, max time.Duration) *pollBackoff {
	return &pollBackoff{initial: initial, max: max, current: initial}
}

// Fail records a failed poll and returns the delay to wait before retrying.
func (b *pollBackoff) Fail() time.Duration {
	b.consecutive++
	delay := b.current
	next := b.current * 2
	if next > b.max {
		next = b.max
	}
	b.current = next
	return delay
}

// Reset clears the back-off state after a successful poll.
func (b *pollBackoff) Reset() {
	b.consecutive = 0
	b.current = b.initial
}

// ConsecutiveFailures reports how many polls have failed in a row.
func (b *pollBackoff) ConsecutiveFailures() int {
	return b.consecutive
}

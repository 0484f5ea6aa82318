package ingest

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// RetryQueue re-scores borrowers that were rejected only because their
// health factor sat above the liquidation threshold but within margin
// (market.RejHFAboveMax), on the theory that a thin margin resolves itself
// on the next oracle update. Delay backs off exponentially per re-schedule
// of the same borrower, 5s -> 60s, jittered +/-20% so a burst of
// simultaneous rejections doesn't re-fire in lockstep.
type RetryQueue struct {
	log *zap.Logger

	initialDelay time.Duration
	maxDelay     time.Duration

	mu        sync.Mutex
	scheduled map[market.DedupeKey]*retryEntry

	out chan market.Candidate

	randFunc func() float64
}

type retryEntry struct {
	delay   time.Duration
	timer   *time.Timer
	version uint64
}

// NewRetryQueue builds a RetryQueue with the given back-off bounds and
// output channel depth.
func NewRetryQueue(log *zap.Logger, initialDelay, maxDelay time.Duration, depth int) *RetryQueue {
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}
	return &RetryQueue{
		log:          log,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		scheduled:    make(map[market.DedupeKey]*retryEntry),
		out:          make(chan market.Candidate, depth),
		randFunc:     rand.Float64,
	}
}

// Out returns the channel RetryQueue emits re-scoring candidates on.
func (q *RetryQueue) Out() <-chan market.Candidate {
	return q.out
}

// Schedule enqueues candidate for re-scoring after this borrower's current
// back-off delay, doubling the delay (capped at maxDelay) for next time.
// Calling Schedule again for the same key before its timer fires replaces
// the pending timer rather than stacking two: a "reschedule guard" so a
// borrower bounced twice within one delay window gets only one re-fire, at
// the longer of the two delays.
func (q *RetryQueue) Schedule(candidate market.Candidate) {
	key := candidate.Key()

	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.scheduled[key]
	if !ok {
		entry = &retryEntry{delay: q.initialDelay}
		q.scheduled[key] = entry
	} else {
		entry.delay = nextBackoff(entry.delay, q.maxDelay)
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	entry.version++
	version := entry.version

	delay := jitter(entry.delay, q.randFunc)
	candidate.Source = market.SourcePolicyRetry

	entry.timer = time.AfterFunc(delay, func() {
		q.fire(key, version, candidate)
	})
}

func (q *RetryQueue) fire(key market.DedupeKey, version uint64, candidate market.Candidate) {
	q.mu.Lock()
	entry, ok := q.scheduled[key]
	stale := !ok || entry.version != version
	q.mu.Unlock()

	if stale {
		return
	}

	select {
	case q.out <- candidate:
	default:
		if q.log != nil {
			q.log.Warn("ingest: retry queue output full, dropping candidate",
				zap.Int64("chain_id", candidate.ChainID),
				zap.String("borrower", candidate.Borrower.Hex()))
		}
	}
}

// Cancel removes any pending re-score for key, used when a borrower clears
// on its own (e.g. a fresh subgraph poll shows HF back below 1 some other
// way, or the borrower fully repaid).
func (q *RetryQueue) Cancel(key market.DedupeKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry, ok := q.scheduled[key]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(q.scheduled, key)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

func jitter(d time.Duration, randFunc func() float64) time.Duration {
	if randFunc == nil {
		randFunc = rand.Float64
	}
	spread := 0.4 * randFunc() - 0.2 // +/-20%
	return time.Duration(float64(d) * (1 + spread))
}

// Package alert emits operator-facing warnings (kill switch, fail-rate cap
// breach, subgraph auth failures, sequencer-down) without flooding logs:
// every alert key gets at most one emission per cooldown window. Logging is
// done through zap, matching the rest of the ambient stack (SPEC_FULL.md
// ambient-stack section); no external paging integration is in scope.
package alert

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Throttled gates repeated alerts for the same key behind a cooldown.
type Throttled struct {
	mu       sync.Mutex
	log      *zap.Logger
	cooldown time.Duration
	last     map[string]time.Time
	nowFunc  func() time.Time
}

// NewThrottled builds a Throttled alert emitter with the given cooldown
// window, shared across every key it is asked to fire.
func NewThrottled(log *zap.Logger, cooldown time.Duration) *Throttled {
	return &Throttled{
		log:      log,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		nowFunc:  time.Now,
	}
}

// Fire emits a warning for key/message if the cooldown for key has elapsed,
// and reports whether it actually emitted (false means suppressed).
func (t *Throttled) Fire(key, message string, fields ...zap.Field) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[key] = now

	t.log.Warn(message, append([]zap.Field{zap.String("alert_key", key)}, fields...)...)
	return true
}

// Reset clears the cooldown state for key, so the next Fire call always
// emits regardless of elapsed time. Used by tests and by components that
// want to force a re-alert after resolving the underlying condition.
func (t *Throttled) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key)
}

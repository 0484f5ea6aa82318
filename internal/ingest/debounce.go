package ingest

import (
	"sync"
	"time"
)

// debouncer coalesces repeated Trigger calls for the same key into a
// single fn invocation, fired window after the last trigger — spec.md
// §4.1's "debounced (>=750ms) borrower refetch" and "debounced to 60s"
// chain-wide refetch both use this.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, timers: make(map[string]*time.Timer)}
}

// Trigger (re)starts key's timer; fn runs once, window after the most
// recent Trigger call for that key.
func (d *debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.window, fn)
}

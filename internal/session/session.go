// Package session tracks the cross-chain global counters that gate the
// agent's process-wide shutdown conditions: how many plans have been
// readied, sent, or errored, and how much notional has been committed this
// session. It does not record when the fail-rate alert last fired. SPEC_FULL.md's
// concurrency model gives these one mutex shared by every chain agent
// (they're mutated "by one chain agent at a time under the cooperative
// scheduler"), so this is a plain sync.Mutex-guarded struct rather than
// atomics per field — a send decision has to read several of them
// consistently together (live-execution count AND notional, in the same
// check) to enforce the session caps correctly.
package session

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Counters holds the agent-wide session state.
type Counters struct {
	mu sync.Mutex

	plansReady uint64
	plansSent  uint64
	plansError uint64

	liveExecutions     uint64
	sessionNotionalUSD decimal.Decimal

	maxLiveExecutions     uint64
	maxSessionNotionalUSD decimal.Decimal
}

// New builds session counters bounded by the given caps. A zero cap means
// "no limit" for that dimension.
func New(maxLiveExecutions uint64, maxSessionNotionalUSD decimal.Decimal) *Counters {
	return &Counters{
		maxLiveExecutions:     maxLiveExecutions,
		maxSessionNotionalUSD: maxSessionNotionalUSD,
	}
}

// RecordReady increments the plans-ready counter.
func (c *Counters) RecordReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plansReady++
}

// ReserveSend checks both session caps and, if neither would be exceeded by
// adding repayUSD, atomically reserves the slot (incrementing liveExecutions
// and sessionNotionalUSD) and returns true. Returns false, making no change,
// if either cap would be breached — the caller should end the process
// cleanly in that case rather than retry.
func (c *Counters) ReserveSend(repayUSD decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxLiveExecutions > 0 && c.liveExecutions+1 > c.maxLiveExecutions {
		return false
	}
	projected := c.sessionNotionalUSD.Add(repayUSD)
	if !c.maxSessionNotionalUSD.IsZero() && projected.GreaterThan(c.maxSessionNotionalUSD) {
		return false
	}

	c.liveExecutions++
	c.sessionNotionalUSD = projected
	return true
}

// RecordSent increments the plans-sent counter. Call after a successful
// submission; does not affect the reservation made by ReserveSend.
func (c *Counters) RecordSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plansSent++
}

// RecordError increments the plans-error counter and releases one live
// execution slot reserved by ReserveSend (the notional stays counted —
// once sent, the capital was committed regardless of outcome).
func (c *Counters) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plansError++
	if c.liveExecutions > 0 {
		c.liveExecutions--
	}
}

// Snapshot is a point-in-time, read-only copy of the counters.
type Snapshot struct {
	PlansReady         uint64
	PlansSent          uint64
	PlansError         uint64
	LiveExecutions     uint64
	SessionNotionalUSD decimal.Decimal
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		PlansReady:         c.plansReady,
		PlansSent:          c.plansSent,
		PlansError:         c.plansError,
		LiveExecutions:     c.liveExecutions,
		SessionNotionalUSD: c.sessionNotionalUSD,
	}
}

// CapsExceeded reports whether either session cap has already been reached,
// independent of any specific candidate plan — used by the chain agent's
// shutdown check after a send completes.
func (c *Counters) CapsExceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxLiveExecutions > 0 && c.liveExecutions >= c.maxLiveExecutions {
		return true
	}
	if !c.maxSessionNotionalUSD.IsZero() && c.sessionNotionalUSD.GreaterThanOrEqual(c.maxSessionNotionalUSD) {
		return true
	}
	return false
}

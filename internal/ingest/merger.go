// Package ingest owns every way a liquidation candidate enters the agent:
// periodic subgraph polling for Aave-family and Morpho Blue markets,
// realtime pool/oracle watching over WS, a predictive HF-slope scanner, and
// a retry queue for borrowers rejected only because their health factor
// still sat above the liquidation threshold. Merger fans all four producers
// into the single channel internal/chainagent.Agent drains.
package ingest

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// DefaultMergedChannelDepth is the buffered channel capacity Merger.Run
// allocates, matching SPEC_FULL.md §4.1's "depth >= 256".
const DefaultMergedChannelDepth = 256

// DefaultDedupeWindow is how long Merger suppresses a repeat candidate with
// the same market.Candidate.Key() after first emitting it.
const DefaultDedupeWindow = 2 * time.Second

// Merger fans in candidates from any number of producer channels into one
// output channel, suppressing repeats of the same (chain, borrower,
// debt, collateral) key within a short window — whichever producer's
// candidate for that key arrives first within the window wins, later ones
// in the window are dropped rather than queued.
type Merger struct {
	log    *zap.Logger
	window time.Duration

	mu   sync.Mutex
	seen map[market.DedupeKey]time.Time

	out chan market.Candidate
}

// NewMerger builds a Merger with the given dedupe window and output channel
// depth.
func NewMerger(log *zap.Logger, window time.Duration, depth int) *Merger {
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}
	return &Merger{
		log:    log,
		window: window,
		seen:   make(map[market.DedupeKey]time.Time),
		out:    make(chan market.Candidate, depth),
	}
}

// Out returns the merged candidate channel. Closed once every producer
// goroutine started by Run has returned.
func (m *Merger) Out() <-chan market.Candidate {
	return m.out
}

// Run drains every producer channel into m.Out(), deduping as it goes,
// until all producers close their channels or done is closed. It blocks
// until that point, so callers invoke it in its own goroutine.
func (m *Merger) Run(done <-chan struct{}, producers ...<-chan market.Candidate) {
	var wg sync.WaitGroup
	wg.Add(len(producers))

	for _, producer := range producers {
		producer := producer
		go func() {
			defer wg.Done()
			for {
				select {
				case c, ok := <-producer:
					if !ok {
						return
					}
					m.emit(c)
				case <-done:
					return
				}
			}
		}()
	}

	wg.Wait()
	close(m.out)
}

func (m *Merger) emit(c market.Candidate) {
	key := c.Key()

	m.mu.Lock()
	last, ok := m.seen[key]
	now := time.Now()
	if ok && now.Sub(last) < m.window {
		m.mu.Unlock()
		if m.log != nil {
			m.log.Debug("ingest: dedupe suppressed candidate",
				zap.Int64("chain_id", c.ChainID),
				zap.String("borrower", c.Borrower.Hex()),
				zap.String("source", string(c.Source)))
		}
		return
	}
	m.seen[key] = now
	m.mu.Unlock()

	m.out <- c
}

package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// DefaultPredictiveInterval is the scan cadence SPEC_FULL.md §4.1 specifies
// for the HF-slope predictive scanner.
const DefaultPredictiveInterval = 30 * time.Second

// HFSample is one borrower health-factor observation the scanner's caller
// supplies (typically sourced from the same position reads the subgraph
// poller already performs).
type HFSample struct {
	Candidate market.Candidate
	HF        float64
	At        time.Time
}

// PositionSource supplies the scanner's per-tick snapshot of tracked
// borrowers; production wiring backs it with the last subgraph poll
// result, a test backs it with a canned slice.
type PositionSource interface {
	Snapshot(ctx context.Context) ([]HFSample, error)
}

// PredictiveScanner watches each tracked borrower's HF slope across ticks
// and emits a candidate early when the trend projects a threshold breach
// before the next scheduled poll, subject to a per-borrower cooldown so one
// fast-falling borrower doesn't flood the merged channel every tick.
type PredictiveScanner struct {
	log      *zap.Logger
	source   PositionSource
	interval time.Duration
	cooldown time.Duration
	// slopeMargin is the minimum projected one-tick HF drop (in absolute HF
	// units) that counts as "falling fast enough to front-run".
	slopeMargin float64

	mu       sync.Mutex
	lastHF   map[market.DedupeKey]HFSample
	lastFire map[market.DedupeKey]time.Time

	out chan market.Candidate
}

// NewPredictiveScanner builds a PredictiveScanner polling source every
// interval, firing a candidate at most once per cooldown per borrower when
// the projected next-tick HF drop exceeds slopeMargin.
func NewPredictiveScanner(log *zap.Logger, source PositionSource, interval, cooldown time.Duration, slopeMargin float64, depth int) *PredictiveScanner {
	if interval <= 0 {
		interval = DefaultPredictiveInterval
	}
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}
	return &PredictiveScanner{
		log:         log,
		source:      source,
		interval:    interval,
		cooldown:    cooldown,
		slopeMargin: slopeMargin,
		lastHF:      make(map[market.DedupeKey]HFSample),
		lastFire:    make(map[market.DedupeKey]time.Time),
		out:         make(chan market.Candidate, depth),
	}
}

// Out returns the channel PredictiveScanner emits early candidates on.
func (p *PredictiveScanner) Out() <-chan market.Candidate {
	return p.out
}

// Run ticks every interval, snapshotting positions and emitting candidates
// for borrowers whose HF slope projects a breach, until ctx is cancelled.
func (p *PredictiveScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.out)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.tick(ctx, now)
		}
	}
}

func (p *PredictiveScanner) tick(ctx context.Context, now time.Time) {
	samples, err := p.source.Snapshot(ctx)
	if err != nil {
		if p.log != nil {
			p.log.Warn("ingest: predictive scanner snapshot failed", zap.Error(err))
		}
		return
	}

	for _, sample := range samples {
		p.observe(sample, now)
	}
}

func (p *PredictiveScanner) observe(sample HFSample, now time.Time) {
	key := sample.Candidate.Key()

	p.mu.Lock()
	prev, hadPrev := p.lastHF[key]
	p.lastHF[key] = sample
	lastFire, fired := p.lastFire[key]
	p.mu.Unlock()

	if !hadPrev {
		return
	}
	elapsed := sample.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return
	}

	slopePerSecond := (prev.HF - sample.HF) / elapsed
	if slopePerSecond <= 0 {
		return
	}

	projectedDrop := slopePerSecond * p.interval.Seconds()
	if projectedDrop < p.slopeMargin {
		return
	}
	// the current HF must still be at or above 1 and the projected next-tick
	// HF below 1: this scanner front-runs a breach, it does not duplicate a
	// candidate already below threshold (the subgraph/realtime producers
	// already cover that case).
	if sample.HF-projectedDrop >= 1.0 || sample.HF < 1.0 {
		return
	}

	if fired && now.Sub(lastFire) < p.cooldown {
		return
	}

	p.mu.Lock()
	p.lastFire[key] = now
	p.mu.Unlock()

	candidate := sample.Candidate
	candidate.Source = market.SourcePredictive
	select {
	case p.out <- candidate:
	default:
		if p.log != nil {
			p.log.Warn("ingest: predictive scanner output full, dropping candidate")
		}
	}
}

package wiring

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// PositionResolver adapts Runtime to ingest.PositionResolver for the
// realtime Watcher. Discovering a brand-new at-risk borrower needs a full
// reserves/positions read (which debt and which collateral, at what
// amounts) that only the subgraph/Morpho pollers are grounded to perform;
// the watcher's job is narrower — react fast to a pool event or oracle
// update for a borrower ingestion has already surfaced. So ResolveBorrower
// and ResolveChainWide here only refresh the health factor of candidates
// already recorded in Runtime.candidateHints (via ObserveCandidate),
// rather than re-deriving a candidate's debt/collateral shape from
// scratch. A borrower the pollers haven't seen yet is picked up on their
// next sweep rather than by the watcher.
type PositionResolver struct {
	rt    *Runtime
	chain *market.Chain
}

// NewPositionResolver builds the Watcher-facing resolver for one chain.
func NewPositionResolver(rt *Runtime, chain *market.Chain) *PositionResolver {
	return &PositionResolver{rt: rt, chain: chain}
}

func (r *PositionResolver) ResolveBorrower(ctx context.Context, borrower common.Address) (market.Candidate, bool, error) {
	r.rt.mu.Lock()
	hint, ok := r.rt.candidateHints[borrower]
	r.rt.mu.Unlock()
	if !ok {
		return market.Candidate{}, false, nil
	}

	acct, err := r.rt.onChainHF(ctx, r.chain, borrower)
	if err != nil {
		return market.Candidate{}, false, err
	}
	if acct.Missing {
		return hint, true, nil
	}
	hint.HealthFactor = acct.HealthFactor
	return hint, true, nil
}

func (r *PositionResolver) ResolveChainWide(ctx context.Context) ([]market.Candidate, error) {
	r.rt.mu.Lock()
	borrowers := make([]common.Address, 0, len(r.rt.candidateHints))
	for b := range r.rt.candidateHints {
		borrowers = append(borrowers, b)
	}
	r.rt.mu.Unlock()

	out := make([]market.Candidate, 0, len(borrowers))
	for _, b := range borrowers {
		c, ok, err := r.ResolveBorrower(ctx, b)
		if err != nil || !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

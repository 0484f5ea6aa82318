package ingest

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// SubgraphPoller periodically queries an Aave v3-family subgraph for
// at-risk borrowers in two steps: first the IDs of every borrower whose
// position changed recently enough to matter, then a batched read of each
// borrower's reserves. Failures back off exponentially (5s -> 120s per
// SPEC_FULL.md §4.1), and every failed poll also rotates to the next
// configured endpoint: there is no consecutive-failure threshold before a
// rotation and no minimum time spent on a fallback endpoint.
type SubgraphPoller struct {
	log    *zap.Logger
	chain  *market.Chain
	client *http.Client

	endpoints    []string
	endpointIdx  int
	pollInterval time.Duration
	batchSize    int

	limiter *rate.Limiter
	backoff *pollBackoff

	// IndexerBoost, when set, is queried alongside the default endpoint on
	// every Nth poll to catch borrowers a lagging default indexer missed —
	// spec.md's "indexer-boost hook".
	indexerBoost      string
	indexerBoostEvery int
	tick              int

	out chan market.Candidate
}

// SubgraphPollerConfig bundles SubgraphPoller's construction parameters.
type SubgraphPollerConfig struct {
	Endpoints         []string // first is primary, rest are fallbacks tried in order
	IndexerBoost      string
	IndexerBoostEvery int
	PollInterval      time.Duration
	BatchSize         int
	RateLimitPerSec   float64
	RateLimitBurst    int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// NewSubgraphPoller builds a SubgraphPoller for one chain.
func NewSubgraphPoller(log *zap.Logger, chain *market.Chain, cfg SubgraphPollerConfig, depth int) *SubgraphPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 120 * time.Second
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}

	return &SubgraphPoller{
		log:               log,
		chain:             chain,
		client:            &http.Client{Timeout: 10 * time.Second},
		endpoints:         cfg.Endpoints,
		pollInterval:      cfg.PollInterval,
		batchSize:         cfg.BatchSize,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		backoff:           newPollBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		indexerBoost:      cfg.IndexerBoost,
		indexerBoostEvery: cfg.IndexerBoostEvery,
		out:               make(chan market.Candidate, depth),
	}
}

// Out returns the channel SubgraphPoller emits discovered candidates on.
func (p *SubgraphPoller) Out() <-chan market.Candidate {
	return p.out
}

// Run polls on pollInterval until ctx is cancelled.
func (p *SubgraphPoller) Run(ctx context.Context) {
	defer close(p.out)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *SubgraphPoller) poll(ctx context.Context) {
	if len(p.endpoints) == 0 {
		return
	}

	p.tick++
	endpoint := p.endpoints[p.endpointIdx%len(p.endpoints)]

	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	borrowerIDs, err := p.fetchBorrowerIDs(ctx, endpoint)
	if err != nil {
		p.handleFailure(err)
		return
	}

	if p.indexerBoost != "" && p.indexerBoostEvery > 0 && p.tick%p.indexerBoostEvery == 0 {
		boosted, err := p.fetchBorrowerIDs(ctx, p.indexerBoost)
		if err == nil {
			borrowerIDs = dedupeStrings(append(borrowerIDs, boosted...))
		}
	}

	for start := 0; start < len(borrowerIDs); start += p.batchSize {
		end := start + p.batchSize
		if end > len(borrowerIDs) {
			end = len(borrowerIDs)
		}
		batch := borrowerIDs[start:end]

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		candidates, err := p.fetchUserReserves(ctx, endpoint, batch)
		if err != nil {
			p.handleFailure(err)
			return
		}
		for _, c := range candidates {
			select {
			case p.out <- c:
			case <-ctx.Done():
				return
			}
		}
	}

	p.backoff.Reset()
}

func (p *SubgraphPoller) handleFailure(err error) {
	delay := p.backoff.Fail()
	if p.log != nil {
		p.log.Warn("ingest: subgraph poll failed",
			zap.Int64("chain_id", p.chain.ChainID),
			zap.Error(err),
			zap.Duration("backoff", delay),
			zap.Int("consecutive_failures", p.backoff.ConsecutiveFailures()))
	}
	if len(p.endpoints) > 1 {
		p.endpointIdx = (p.endpointIdx + 1) % len(p.endpoints)
	}
	time.Sleep(delay)
}

const borrowerIDsQuery = `query BorrowerIDs($first: Int!, $skip: Int!) {
  users(first: $first, skip: $skip, where: { borrowedReservesCount_gt: 0 }) { id }
}`

type subgraphUserID struct {
	ID string `json:"id"`
}

type borrowerIDsData struct {
	Users []subgraphUserID `json:"users"`
}

func (p *SubgraphPoller) fetchBorrowerIDs(ctx context.Context, endpoint string) ([]string, error) {
	var data borrowerIDsData
	err := postGraphQL(ctx, p.client, endpoint, borrowerIDsQuery, map[string]interface{}{
		"first": 1000,
		"skip":  0,
	}, &data)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data.Users))
	for _, u := range data.Users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

const userReservesQuery = `query UserReserves($ids: [String!]!) {
  users(where: { id_in: $ids }) {
    id
    reserves {
      reserve { underlyingAsset symbol decimals }
      currentTotalDebt
      currentATokenBalance
    }
  }
}`

type subgraphReserveToken struct {
	UnderlyingAsset string `json:"underlyingAsset"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
}

type subgraphUserReserve struct {
	Reserve              subgraphReserveToken `json:"reserve"`
	CurrentTotalDebt     string               `json:"currentTotalDebt"`
	CurrentATokenBalance string               `json:"currentATokenBalance"`
}

type subgraphUserReserves struct {
	ID       string                 `json:"id"`
	Reserves []subgraphUserReserve `json:"reserves"`
}

type userReservesData struct {
	Users []subgraphUserReserves `json:"users"`
}

// fetchUserReserves reads each borrower's largest debt and collateral
// reserve and assembles one market.Candidate per borrower. Health factor
// is left at zero here: the scorer (or a realtime HF read) resolves the
// authoritative on-chain health factor, the subgraph is only a discovery
// source of "which borrowers to look at", per spec.md §4.1.
func (p *SubgraphPoller) fetchUserReserves(ctx context.Context, endpoint string, ids []string) ([]market.Candidate, error) {
	var data userReservesData
	err := postGraphQL(ctx, p.client, endpoint, userReservesQuery, map[string]interface{}{
		"ids": ids,
	}, &data)
	if err != nil {
		return nil, err
	}

	var out []market.Candidate
	for _, u := range data.Users {
		var debt, collateral *reserveEntry
		for i := range u.Reserves {
			r := &u.Reserves[i]
			if amt, ok := new(big.Int).SetString(r.CurrentTotalDebt, 10); ok && amt.Sign() > 0 {
				if debt == nil || amt.Cmp(debt.amount) > 0 {
					debt = &reserveEntry{&r.Reserve, amt}
				}
			}
			if amt, ok := new(big.Int).SetString(r.CurrentATokenBalance, 10); ok && amt.Sign() > 0 {
				if collateral == nil || amt.Cmp(collateral.amount) > 0 {
					collateral = &reserveEntry{&r.Reserve, amt}
				}
			}
		}
		if debt == nil || collateral == nil {
			continue
		}

		out = append(out, market.Candidate{
			ChainID:  p.chain.ChainID,
			Borrower: common.HexToAddress(u.ID),
			Debt: market.TokenPosition{
				Symbol:   debt.reserve.Symbol,
				Address:  common.HexToAddress(debt.reserve.UnderlyingAsset),
				Decimals: uint8(debt.reserve.Decimals),
				Amount:   debt.amount,
			},
			Collateral: market.TokenPosition{
				Symbol:   collateral.reserve.Symbol,
				Address:  common.HexToAddress(collateral.reserve.UnderlyingAsset),
				Decimals: uint8(collateral.reserve.Decimals),
				Amount:   collateral.amount,
			},
			Protocol: market.ProtocolAaveV3,
			Source:   market.SourceSubgraph,
		})
	}
	return out, nil
}

type reserveEntry struct {
	reserve *subgraphReserveToken
	amount  *big.Int
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

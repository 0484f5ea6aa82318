package ingest

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/preliq"
	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
)

// MorphoPoller polls a Morpho Blue subgraph for at-risk positions, the same
// two-step shape as SubgraphPoller but against Morpho's market/position
// schema, and optionally enriches each candidate with pre-liquidation
// offer terms before emitting it. Poll interval is adaptive: a poll that
// returns at least one position resets it to minInterval, a quiet poll
// doubles it up to maxInterval, and a failed poll sets it to maxInterval,
// so a chain under stress gets polled faster without a fixed
// aggressive cadence burning rate-limit budget during calm periods.
type MorphoPoller struct {
	log    *zap.Logger
	chain  *market.Chain
	client *http.Client

	endpoint string

	minInterval     time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration

	backoff *pollBackoff

	// preliqClientFor resolves the (offer contract, Morpho core contract)
	// clients for a borrower's market when pre-liquidation enrichment is
	// enabled; nil disables enrichment even if chain.PreLiqEnabled is set
	// (e.g. because the offer address isn't known until after this call).
	preliqClientFor func(marketID [32]byte, borrower common.Address) (contractclient.Client, contractclient.Client)

	out chan market.Candidate
}

// MorphoPollerConfig bundles MorphoPoller's construction parameters.
type MorphoPollerConfig struct {
	Endpoint       string
	MinInterval    time.Duration
	MaxInterval    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewMorphoPoller builds a MorphoPoller for one chain. Pre-liquidation
// enrichment is skipped entirely when chain.PreLiqEnabled is false.
func NewMorphoPoller(log *zap.Logger, chain *market.Chain, cfg MorphoPollerConfig, depth int) *MorphoPoller {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 10 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 60 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 120 * time.Second
	}
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}

	return &MorphoPoller{
		log:             log,
		chain:           chain,
		client:          &http.Client{Timeout: 10 * time.Second},
		endpoint:        cfg.Endpoint,
		minInterval:     cfg.MinInterval,
		maxInterval:     cfg.MaxInterval,
		currentInterval: cfg.MaxInterval,
		backoff:         newPollBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		out:             make(chan market.Candidate, depth),
	}
}

// Out returns the channel MorphoPoller emits discovered candidates on.
func (p *MorphoPoller) Out() <-chan market.Candidate {
	return p.out
}

// SetPreliqClientResolver wires pre-liquidation enrichment: resolver is
// called once per candidate to get the (offer contract, Morpho core
// contract) clients for that borrower's market. Leaving this unset (the
// default) means MorphoPoller never attempts enrichment even on a chain
// with PreLiqEnabled.
func (p *MorphoPoller) SetPreliqClientResolver(resolver func(marketID [32]byte, borrower common.Address) (contractclient.Client, contractclient.Client)) {
	p.preliqClientFor = resolver
}

// Run polls on the current adaptive interval until ctx is cancelled.
func (p *MorphoPoller) Run(ctx context.Context) {
	defer close(p.out)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.poll(ctx)
			timer.Reset(p.currentInterval)
		}
	}
}

const morphoPositionsQuery = `query AtRiskPositions {
  marketPositions(where: { healthFactor_lt: "1.05" }) {
    market { id loanAsset { address symbol decimals } collateralAsset { address symbol decimals } }
    user { id }
    borrowShares
    healthFactor
  }
}`

type morphoAsset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type morphoMarket struct {
	ID              string      `json:"id"`
	LoanAsset       morphoAsset `json:"loanAsset"`
	CollateralAsset morphoAsset `json:"collateralAsset"`
}

type morphoPosition struct {
	Market       morphoMarket `json:"market"`
	User         morphoUser   `json:"user"`
	BorrowShares string       `json:"borrowShares"`
	HealthFactor string       `json:"healthFactor"`
}

type morphoUser struct {
	ID string `json:"id"`
}

type morphoPositionsData struct {
	MarketPositions []morphoPosition `json:"marketPositions"`
}

func (p *MorphoPoller) poll(ctx context.Context) {
	if p.endpoint == "" {
		return
	}

	var data morphoPositionsData
	err := postGraphQL(ctx, p.client, p.endpoint, morphoPositionsQuery, nil, &data)
	if err != nil {
		delay := p.backoff.Fail()
		if p.log != nil {
			p.log.Warn("ingest: morpho poll failed", zap.Int64("chain_id", p.chain.ChainID), zap.Error(err))
		}
		p.currentInterval = p.maxInterval
		time.Sleep(delay)
		return
	}
	p.backoff.Reset()

	if len(data.MarketPositions) > 0 {
		p.currentInterval = p.minInterval
	} else {
		p.currentInterval = minDuration(p.currentInterval*2, p.maxInterval)
	}

	for _, pos := range data.MarketPositions {
		candidate, ok := p.toCandidate(pos)
		if !ok {
			continue
		}
		if p.chain.PreLiqEnabled {
			p.tryEnrich(ctx, &candidate)
		}
		select {
		case p.out <- candidate:
		case <-ctx.Done():
			return
		}
	}
}

func (p *MorphoPoller) toCandidate(pos morphoPosition) (market.Candidate, bool) {
	marketID, ok := parseBytes32(pos.Market.ID)
	if !ok {
		return market.Candidate{}, false
	}
	hf, err := decimal.NewFromString(pos.HealthFactor)
	if err != nil {
		return market.Candidate{}, false
	}

	return market.Candidate{
		ChainID:  p.chain.ChainID,
		Borrower: common.HexToAddress(pos.User.ID),
		Debt: market.TokenPosition{
			Symbol:   pos.Market.LoanAsset.Symbol,
			Address:  common.HexToAddress(pos.Market.LoanAsset.Address),
			Decimals: uint8(pos.Market.LoanAsset.Decimals),
		},
		Collateral: market.TokenPosition{
			Symbol:   pos.Market.CollateralAsset.Symbol,
			Address:  common.HexToAddress(pos.Market.CollateralAsset.Address),
			Decimals: uint8(pos.Market.CollateralAsset.Decimals),
		},
		HealthFactor: hfFloat(hf),
		Protocol:     market.ProtocolMorphoBlue,
		Source:       market.SourceSubgraph,
		Morpho: &market.MorphoMeta{
			MarketID:     marketID,
			LoanToken:    common.HexToAddress(pos.Market.LoanAsset.Address),
			CollatToken:  common.HexToAddress(pos.Market.CollateralAsset.Address),
			BorrowShares: pos.BorrowShares,
		},
	}, true
}

// tryEnrich populates candidate.Morpho.PreLiqOffer when a pre-liquidation
// offer exists and is authorized for this borrower. preliq.Enrich's own
// ErrFeatureDisabled/authorization errors are swallowed: the candidate is
// still emitted for ordinary liquidation scoring either way, enrichment is
// strictly additive.
func (p *MorphoPoller) tryEnrich(ctx context.Context, candidate *market.Candidate) {
	if p.preliqClientFor == nil || candidate.Morpho == nil {
		return
	}
	hf := decimal.NewFromFloat(candidate.HealthFactor)
	offerClient, coreClient := p.preliqClientFor(candidate.Morpho.MarketID, candidate.Borrower)
	if offerClient == nil || coreClient == nil {
		return
	}
	offer, err := preliq.Enrich(ctx, p.chain, candidate.Borrower, candidate.Morpho.MarketID, hf, offerClient, coreClient)
	if err != nil {
		return
	}
	candidate.Morpho.PreLiqOffer = offer
}

func parseBytes32(hexStr string) ([32]byte, bool) {
	var out [32]byte
	raw := strings.TrimPrefix(hexStr, "0x")
	if len(raw) != 64 {
		return out, false
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return out, false
	}
	copy(out[:], decoded)
	return out, true
}

func hfFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

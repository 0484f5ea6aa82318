// Package adaptive wraps the external risk-engine client the scorer
// consults for per-candidate threshold relaxation (SPEC_FULL.md §4.6): it
// submits the chain, asset pair and observed gap, gets back possibly-lower
// caps, and the caller always takes min(base, provided). A "pegged pair"
// recognizer widens the gap cap for correlated LST/ETH pairs before the
// provider's own response is applied. Outages degrade to returning the base
// values unchanged, matching the teacher's own pattern of treating RPC
// failures as "use what you already had" rather than propagating an error
// up through a whole scoring pass.
package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	errNoProvider = errors.New("adaptive: no provider base URL configured")
	errBadStatus  = errors.New("adaptive: provider returned non-200 status")
)

// Thresholds is what the scorer actually consumes after adaptive
// adjustment: the effective HF ceiling and oracle-vs-DEX gap cap.
type Thresholds struct {
	HFMax     float64
	GapCapBps float64
}

// Client queries the external risk engine over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// peggedPairs lists "<symbolA>/<symbolB>" pairs (order-independent)
	// whose gap cap is widened by peggedGapMultiplier before the provider
	// response is folded in, recognizing that ETH-LST pairs legitimately
	// trade at a small, persistent basis.
	peggedPairs        map[string]bool
	peggedGapMultiplier float64
}

// New builds a Client. peggedPairs entries should be "symbolA/symbolB" in
// either token order; New normalizes both orders internally.
func New(baseURL string, timeout time.Duration, peggedPairs []string, peggedGapMultiplier float64) *Client {
	set := make(map[string]bool, len(peggedPairs)*2)
	for _, p := range peggedPairs {
		parts := strings.SplitN(p, "/", 2)
		if len(parts) != 2 {
			continue
		}
		set[pairKey(parts[0], parts[1])] = true
		set[pairKey(parts[1], parts[0])] = true
	}

	return &Client{
		httpClient:          &http.Client{Timeout: timeout},
		baseURL:             baseURL,
		peggedPairs:         set,
		peggedGapMultiplier: peggedGapMultiplier,
	}
}

func pairKey(a, b string) string {
	return strings.ToUpper(a) + "/" + strings.ToUpper(b)
}

// IsPeggedPair reports whether symbolA/symbolB is a recognized LST/ETH-style
// pegged pair.
func (c *Client) IsPeggedPair(symbolA, symbolB string) bool {
	return c.peggedPairs[pairKey(symbolA, symbolB)]
}

type request struct {
	Chain         string  `json:"chain"`
	ChainName     string  `json:"chain_name"`
	AssetKey      string  `json:"asset_key"`
	BaseHFMax     float64 `json:"base_hf_max"`
	BaseGapCapBps float64 `json:"base_gap_cap_bps"`
	ObservedGap   float64 `json:"observed_gap_bps"`
}

type response struct {
	HFMax      float64 `json:"hf_max"`
	GapCapBps  float64 `json:"gap_cap_bps"`
	Volatility float64 `json:"volatility"`
}

// Resolve queries the risk engine for chain/assetKey and returns
// min(base, provided) thresholds, pre-widened for pegged pairs. On any
// transport or decode error it falls back to the base thresholds unchanged.
func (c *Client) Resolve(ctx context.Context, chainID int64, chainName, assetKey string, base Thresholds, observedGapBps float64, pairSymbolA, pairSymbolB string) Thresholds {
	effectiveBase := base
	if c.IsPeggedPair(pairSymbolA, pairSymbolB) {
		effectiveBase.GapCapBps *= c.peggedGapMultiplier
	}

	provided, err := c.fetch(ctx, chainID, chainName, assetKey, effectiveBase, observedGapBps)
	if err != nil {
		return effectiveBase
	}

	return Thresholds{
		HFMax:     minFloat(effectiveBase.HFMax, provided.HFMax),
		GapCapBps: minFloat(effectiveBase.GapCapBps, provided.GapCapBps),
	}
}

func (c *Client) fetch(ctx context.Context, chainID int64, chainName, assetKey string, base Thresholds, observedGapBps float64) (Thresholds, error) {
	if c.baseURL == "" {
		return Thresholds{}, errNoProvider
	}

	body, err := json.Marshal(request{
		Chain:         chainIDString(chainID),
		ChainName:     chainName,
		AssetKey:      assetKey,
		BaseHFMax:     base.HFMax,
		BaseGapCapBps: base.GapCapBps,
		ObservedGap:   observedGapBps,
	})
	if err != nil {
		return Thresholds{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/thresholds", strings.NewReader(string(body)))
	if err != nil {
		return Thresholds{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Thresholds{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Thresholds{}, errBadStatus
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Thresholds{}, err
	}

	return Thresholds{HFMax: out.HFMax, GapCapBps: out.GapCapBps}, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func chainIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

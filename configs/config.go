// Package configs loads config.yml into the per-chain descriptors the rest
// of the agent is built on. Kept as a thin YAML-to-struct loader plus a
// handful of To* conversion methods, the same shape as the teacher's own
// configs.Config / ToBlackholeConfigs / ToStrategyConfig.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/blackhole-labs/liquidationd/internal/bootenv"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/scorer"
	"github.com/blackhole-labs/liquidationd/pkg/util"
)

// Config is the top-level config.yml shape.
type Config struct {
	Chains   []ChainYAML   `yaml:"chains"`
	Adaptive AdaptiveYAML  `yaml:"adaptive"`
	Session  SessionYAML   `yaml:"session"`
	Redis    RedisYAML     `yaml:"redis"`
	DB       DBYAML        `yaml:"db"`
	Metrics  MetricsYAML   `yaml:"metrics"`
}

// MetricsYAML configures the /metrics Prometheus handle. Addr empty means
// "don't serve metrics" — the scrape server is out of scope, the agent
// only needs to expose the handle for an operator's own Prometheus to pull.
type MetricsYAML struct {
	Addr string `yaml:"addr"`
}

type TokenYAML struct {
	Symbol           string `yaml:"symbol"`
	Address          string `yaml:"address"`
	Decimals         uint8  `yaml:"decimals"`
	OracleFeed       string `yaml:"oracle_feed"`
	OracleDenom      string `yaml:"oracle_denom"` // "usd" | "native"
	FallbackRouteHub string `yaml:"fallback_route_hub"`
}

type RouterYAML struct {
	DexID   string `yaml:"dex_id"`
	Router  string `yaml:"router"`
	Factory string `yaml:"factory"`
	Quoter  string `yaml:"quoter"`
}

type PreLiqYAML struct {
	Enabled          bool   `yaml:"enabled"`
	Factory          string `yaml:"factory"`
	OfferInitCodeHash string `yaml:"offer_init_code_hash"`
}

type RiskYAML struct {
	HFMaxDefault         float64 `yaml:"hf_max_default"`
	GapCapBpsDefault     int64   `yaml:"gap_cap_bps_default"`
	MaxRepayUSD          float64 `yaml:"max_repay_usd"`
	GasCapUSD            float64 `yaml:"gas_cap_usd"`
	FloorBps             int64   `yaml:"floor_bps"`
	PnlMultipleMin       float64 `yaml:"pnl_multiple_min"`
	MinNetUSD            float64 `yaml:"min_net_usd"`
	SlippageBps          int64   `yaml:"slippage_bps"`
	MaxAttemptsPerHour   int     `yaml:"max_attempts_per_hour"`
	ThrottleBypassHFDrop float64 `yaml:"throttle_bypass_hf_drop"`
	FailRateCap          float64 `yaml:"fail_rate_cap"`
	MaxOracleDivergenceBps int64 `yaml:"max_oracle_divergence_bps"`
}

// PolicyYAML is a per-debt-symbol override of the chain's risk defaults —
// scorer.Deps.LookupPolicy resolves one of these per (chain, debt symbol).
type PolicyYAML struct {
	DebtSymbol         string  `yaml:"debt_symbol"`
	Enabled            bool    `yaml:"enabled"`
	CloseFactorBps     int64   `yaml:"close_factor_bps"`
	BonusBps           int64   `yaml:"bonus_bps"`
	FloorBps           int64   `yaml:"floor_bps"`
	MaxRepayUSD        float64 `yaml:"max_repay_usd"`
	GasCapUSD          float64 `yaml:"gas_cap_usd"`
	SlippageBps        int64   `yaml:"slippage_bps"`
	PnlMultMin         float64 `yaml:"pnl_mult_min"`
	InventoryRefreshMs int64   `yaml:"inventory_refresh_ms"`
}

type ChainYAML struct {
	Name          string       `yaml:"name"`
	ChainID       int64        `yaml:"chain_id"`
	RPC           string       `yaml:"rpc"`
	WSURLs        []string     `yaml:"ws_urls"`
	Liquidator    string       `yaml:"liquidator"`
	ExecutorAddr  string       `yaml:"executor"`
	MarketAddr    string       `yaml:"market_addr"`
	SequencerFeed string       `yaml:"sequencer_feed"`
	Protocol      string       `yaml:"protocol"` // "aavev3" | "morphoblue" | "compoundv3" | "radiant" | "seamless"
	Tokens        []TokenYAML  `yaml:"tokens"`
	Routers       []RouterYAML `yaml:"routers"`
	PreLiq        PreLiqYAML   `yaml:"preliq"`
	Bundler3      string       `yaml:"bundler3"`
	WrappedNative string       `yaml:"wrapped_native"`
	Risk          RiskYAML     `yaml:"risk"`
	Policies      []PolicyYAML `yaml:"policies"`
	Denylist      []string     `yaml:"denylist"`
	Subgraphs     map[string]string `yaml:"subgraph"` // protocol -> URL
}

type AdaptiveYAML struct {
	BaseURL             string   `yaml:"base_url"`
	TimeoutMs           int      `yaml:"timeout_ms"`
	PeggedPairs         []string `yaml:"pegged_pairs"`
	PeggedGapMultiplier float64  `yaml:"pegged_gap_multiplier"`
}

type SessionYAML struct {
	MaxLiveExecutions     int     `yaml:"max_live_executions"`
	MaxSessionNotionalUSD float64 `yaml:"max_session_notional_usd"`
}

type RedisYAML struct {
	Addr string `yaml:"addr"`
}

type DBYAML struct {
	DSN string `yaml:"dsn"`
}

// LoadConfig reads and parses config.yml into a Config struct, loading any
// .env file alongside it first so WALLET_PK_* / KEY / ENC_PK resolve the
// same way whether run locally or under a process manager.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load() // best effort; missing .env is not fatal

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &config, nil
}

// ToChains resolves every configured chain into a *market.Chain, decrypting
// each chain's executor key via WALLET_PK_<NAME> (or its alias) and the
// shared KEY env var.
func (c *Config) ToChains() ([]*market.Chain, error) {
	chains := make([]*market.Chain, 0, len(c.Chains))
	for _, cy := range c.Chains {
		chain, err := cy.toChain()
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", cy.Name, err)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

func (cy ChainYAML) toChain() (*market.Chain, error) {
	encPK, err := bootenv.WalletPK(cy.Name)
	if err != nil {
		return nil, err
	}
	key := os.Getenv("KEY")
	if key == "" {
		return nil, fmt.Errorf("KEY env var not set")
	}
	pkHex, err := util.Decrypt([]byte(key), encPK)
	if err != nil {
		return nil, fmt.Errorf("decrypt executor key: %w", err)
	}
	executorKey, err := crypto.HexToECDSA(trimHexPrefix(pkHex))
	if err != nil {
		return nil, fmt.Errorf("parse executor key: %w", err)
	}

	tokens := make(map[common.Address]*market.Token, len(cy.Tokens))
	tokensBySym := make(map[string]*market.Token, len(cy.Tokens))
	for _, ty := range cy.Tokens {
		tok := &market.Token{
			Symbol:           ty.Symbol,
			Address:          common.HexToAddress(ty.Address),
			Decimals:         ty.Decimals,
			OracleFeed:       common.HexToAddress(ty.OracleFeed),
			OracleDenom:      parseOracleDenom(ty.OracleDenom),
			FallbackRouteHub: common.HexToAddress(ty.FallbackRouteHub),
		}
		tokens[tok.Address] = tok
		tokensBySym[tok.Symbol] = tok
	}

	routers := make([]market.RouterConfig, 0, len(cy.Routers))
	for _, r := range cy.Routers {
		routers = append(routers, market.RouterConfig{
			DexID:   r.DexID,
			Router:  common.HexToAddress(r.Router),
			Factory: common.HexToAddress(r.Factory),
			Quoter:  common.HexToAddress(r.Quoter),
		})
	}

	var initCodeHash [32]byte
	if cy.PreLiq.OfferInitCodeHash != "" {
		copy(initCodeHash[:], common.FromHex(cy.PreLiq.OfferInitCodeHash))
	}

	return &market.Chain{
		ChainID:       cy.ChainID,
		Name:          cy.Name,
		RPCURL:        cy.RPC,
		WSURLs:        cy.WSURLs,
		Liquidator:    common.HexToAddress(cy.Liquidator),
		ExecutorAddr:  common.HexToAddress(cy.ExecutorAddr),
		ExecutorKey:   executorKey,
		Tokens:        tokens,
		TokensBySym:   tokensBySym,
		Routers:       routers,
		SequencerFeed: common.HexToAddress(cy.SequencerFeed),
		MarketAddr:    common.HexToAddress(cy.MarketAddr),
		Protocol:      parseProtocol(cy.Protocol),

		PreLiqEnabled:           cy.PreLiq.Enabled,
		PreLiqFactory:           common.HexToAddress(cy.PreLiq.Factory),
		PreLiqOfferInitCodeHash: initCodeHash,

		Bundler3:      common.HexToAddress(cy.Bundler3),
		WrappedNative: common.HexToAddress(cy.WrappedNative),

		Risk: market.RiskOverrides{
			HFMaxDefault:         cy.Risk.HFMaxDefault,
			GapCapBpsDefault:     cy.Risk.GapCapBpsDefault,
			MaxRepayUSD:          cy.Risk.MaxRepayUSD,
			GasCapUSD:            cy.Risk.GasCapUSD,
			FloorBps:             cy.Risk.FloorBps,
			PnlMultipleMin:       cy.Risk.PnlMultipleMin,
			MinNetUSD:            cy.Risk.MinNetUSD,
			SlippageBps:          cy.Risk.SlippageBps,
			MaxAttemptsPerHour:   cy.Risk.MaxAttemptsPerHour,
			ThrottleBypassHFDrop: cy.Risk.ThrottleBypassHFDrop,
			FailRateCap:          cy.Risk.FailRateCap,
			MaxOracleDivergenceBps: cy.Risk.MaxOracleDivergenceBps,
		},
	}, nil
}

// ToPolicies resolves one chain's per-debt-symbol policy table, keyed by
// debt symbol, for use as scorer.Deps.LookupPolicy's backing store.
func (cy ChainYAML) ToPolicies() map[string]scorer.Policy {
	out := make(map[string]scorer.Policy, len(cy.Policies))
	for _, p := range cy.Policies {
		out[p.DebtSymbol] = scorer.Policy{
			Enabled:            p.Enabled,
			CloseFactorBps:     p.CloseFactorBps,
			BonusBps:           p.BonusBps,
			FloorBps:           p.FloorBps,
			MaxRepayUSD:        decimal.NewFromFloat(p.MaxRepayUSD),
			GasCapUSD:          decimal.NewFromFloat(p.GasCapUSD),
			SlippageBps:        p.SlippageBps,
			PnlMultMin:         decimal.NewFromFloat(p.PnlMultMin),
			InventoryRefreshMs: p.InventoryRefreshMs,
		}
	}
	return out
}

// Denylisted reports whether symbol is on this chain's asset denylist.
func (cy ChainYAML) Denylisted(symbol string) bool {
	for _, d := range cy.Denylist {
		if d == symbol {
			return true
		}
	}
	return false
}

// AdaptiveTimeout returns the configured adaptive-thresholds HTTP timeout,
// defaulting to 2s when unset.
func (a AdaptiveYAML) AdaptiveTimeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func parseProtocol(s string) market.ProtocolKey {
	switch s {
	case "morphoblue":
		return market.ProtocolMorphoBlue
	case "compoundv3":
		return market.ProtocolCompoundV3
	case "radiant":
		return market.ProtocolRadiant
	case "seamless":
		return market.ProtocolSeamless
	default:
		return market.ProtocolAaveV3
	}
}

func parseOracleDenom(s string) market.OracleDenom {
	if s == "native" {
		return market.DenomNative
	}
	return market.DenomUSD
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Package bootenv resolves the environment inputs SPEC_FULL.md's §6 lists
// as required but leaves unnamed: per-chain wallet keys, Safe addresses,
// subgraph endpoint overrides, rate-limit and precommit tunables, and the
// kill-switch path. Grounded on the teacher's cmd/main.go, which reads
// ENC_PK / KEY directly off os.Getenv before handing them to
// util.Decrypt — this package generalizes that single-chain lookup to the
// multi-chain alias scheme the agent needs.
package bootenv

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// chainAliases maps a canonical chain name to the alias suffix used in
// WALLET_PK_<ALIAS> and SAFE_ADDR_<ALIAS> environment variables.
var chainAliases = map[string]string{
	"arbitrum": "ARB",
	"optimism": "OP",
	"base":     "BASE",
	"polygon":  "POLYGON",
	"mainnet":  "ETH",
}

// WalletPK returns the encrypted private key for chainName, checking
// WALLET_PK_<CANONICAL> first and then the chain's documented alias.
func WalletPK(chainName string) (string, error) {
	return lookupAliased("WALLET_PK", chainName)
}

// SafeAddress returns the configured Safe multisig address for chainName,
// if one is set; ok is false when neither variable is present.
func SafeAddress(chainName string) (value string, ok bool) {
	value, err := lookupAliased("SAFE_ADDR", chainName)
	return value, err == nil
}

func lookupAliased(prefix, chainName string) (string, error) {
	canonical := prefix + "_" + strings.ToUpper(chainName)
	if v := os.Getenv(canonical); v != "" {
		return v, nil
	}
	if alias, ok := chainAliases[strings.ToLower(chainName)]; ok {
		aliasKey := prefix + "_" + alias
		if v := os.Getenv(aliasKey); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("bootenv: no %s set for chain %q", prefix, chainName)
}

// SubgraphOverride returns a per-chain, per-protocol subgraph URL override
// (e.g. SUBGRAPH_URL_ARBITRUM_AAVE), if present.
func SubgraphOverride(chainName, protocol string) (string, bool) {
	key := fmt.Sprintf("SUBGRAPH_URL_%s_%s", strings.ToUpper(chainName), strings.ToUpper(protocol))
	v := os.Getenv(key)
	return v, v != ""
}

// SubgraphFallback returns the fallback subgraph URL for a chain/protocol
// pair, used when the primary endpoint's consecutive-failure counter trips.
func SubgraphFallback(chainName, protocol string) (string, bool) {
	key := fmt.Sprintf("SUBGRAPH_FALLBACK_URL_%s_%s", strings.ToUpper(chainName), strings.ToUpper(protocol))
	v := os.Getenv(key)
	return v, v != ""
}

// RateLimitTunables bundles the subgraph global rate limiter's knobs.
type RateLimitTunables struct {
	MaxConcurrent int
	MaxPerWindow  int
	Window        time.Duration
}

// LoadRateLimitTunables reads SUBGRAPH_RL_CONCURRENCY, SUBGRAPH_RL_MAX_PER_WINDOW
// and SUBGRAPH_RL_WINDOW_MS, falling back to conservative defaults.
func LoadRateLimitTunables() RateLimitTunables {
	return RateLimitTunables{
		MaxConcurrent: intEnvOrDefault("SUBGRAPH_RL_CONCURRENCY", 4),
		MaxPerWindow:  intEnvOrDefault("SUBGRAPH_RL_MAX_PER_WINDOW", 30),
		Window:        durationMsEnvOrDefault("SUBGRAPH_RL_WINDOW_MS", 10_000),
	}
}

// PrecommitTunables bundles the EMA predictor's knobs.
type PrecommitTunables struct {
	Alpha            float64
	EligibleWithinMs int64
}

// LoadPrecommitTunables reads PRECOMMIT_EMA_ALPHA and
// PRECOMMIT_ELIGIBLE_WITHIN_MS, falling back to the spec's suggested alpha
// of 0.2.
func LoadPrecommitTunables() PrecommitTunables {
	return PrecommitTunables{
		Alpha:            floatEnvOrDefault("PRECOMMIT_EMA_ALPHA", 0.2),
		EligibleWithinMs: int64(intEnvOrDefault("PRECOMMIT_ELIGIBLE_WITHIN_MS", 2_000)),
	}
}

// PricingTunables bundles the oracle cache's volatility guard knobs (gate 7,
// spec.md §8 scenario 5).
type PricingTunables struct {
	PriceJumpThreshold float64
	PriceJumpWindow    time.Duration
}

// LoadPricingTunables reads PRICE_JUMP_THRESHOLD and PRICE_JUMP_WINDOW_MS,
// falling back to the spec's 10x-within-60s example.
func LoadPricingTunables() PricingTunables {
	return PricingTunables{
		PriceJumpThreshold: floatEnvOrDefault("PRICE_JUMP_THRESHOLD", 10.0),
		PriceJumpWindow:    durationMsEnvOrDefault("PRICE_JUMP_WINDOW_MS", 60_000),
	}
}

// AggregatorTunables bundles the swap aggregator's bearer keys and base URL
// overrides (spec.md §6's Odos/1inch consumption). An empty key disables
// that provider's branch rather than erroring.
type AggregatorTunables struct {
	OdosBaseURL    string
	OdosAPIKey     string
	OneInchBaseURL string
	OneInchAPIKey  string
}

// LoadAggregatorTunables reads ODOS_API_KEY/ODOS_BASE_URL and
// ONEINCH_API_KEY/ONEINCH_BASE_URL.
func LoadAggregatorTunables() AggregatorTunables {
	return AggregatorTunables{
		OdosBaseURL:    os.Getenv("ODOS_BASE_URL"),
		OdosAPIKey:     os.Getenv("ODOS_API_KEY"),
		OneInchBaseURL: os.Getenv("ONEINCH_BASE_URL"),
		OneInchAPIKey:  os.Getenv("ONEINCH_API_KEY"),
	}
}

// KillSwitchPath returns the KILL_SWITCH_PATH env var, empty if unset.
func KillSwitchPath() string {
	return os.Getenv("KILL_SWITCH_PATH")
}

// KillSwitchEnvVar returns the name of the env var polled for the kill
// switch (not its value) — KILL_SWITCH_ENV_VAR, defaulting to
// "LIQUIDATIOND_KILL".
func KillSwitchEnvVar() string {
	if v := os.Getenv("KILL_SWITCH_ENV_VAR"); v != "" {
		return v
	}
	return "LIQUIDATIOND_KILL"
}

func intEnvOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnvOrDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durationMsEnvOrDefault(key string, defMs int) time.Duration {
	return time.Duration(intEnvOrDefault(key, defMs)) * time.Millisecond
}

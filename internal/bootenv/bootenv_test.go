package bootenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalletPKPrefersCanonicalName(t *testing.T) {
	t.Setenv("WALLET_PK_ARBITRUM", "canonical")
	t.Setenv("WALLET_PK_ARB", "alias")

	v, err := WalletPK("arbitrum")
	assert.NoError(t, err)
	assert.Equal(t, "canonical", v)
}

func TestWalletPKFallsBackToAlias(t *testing.T) {
	t.Setenv("WALLET_PK_ARB", "alias-value")

	v, err := WalletPK("arbitrum")
	assert.NoError(t, err)
	assert.Equal(t, "alias-value", v)
}

func TestWalletPKMissingReturnsError(t *testing.T) {
	_, err := WalletPK("unknown-chain")
	assert.Error(t, err)
}

func TestLoadRateLimitTunablesDefaults(t *testing.T) {
	rl := LoadRateLimitTunables()
	assert.Equal(t, 4, rl.MaxConcurrent)
	assert.Equal(t, 30, rl.MaxPerWindow)
}

func TestLoadPrecommitTunablesDefaults(t *testing.T) {
	pc := LoadPrecommitTunables()
	assert.InDelta(t, 0.2, pc.Alpha, 1e-9)
}

func TestKillSwitchEnvVarDefault(t *testing.T) {
	assert.Equal(t, "LIQUIDATIOND_KILL", KillSwitchEnvVar())
}

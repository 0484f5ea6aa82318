package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestThrottledFireSuppressesWithinCooldown(t *testing.T) {
	th := NewThrottled(zaptest.NewLogger(t), time.Minute)

	current := time.Unix(0, 0)
	th.nowFunc = func() time.Time { return current }

	assert.True(t, th.Fire("kill-switch", "kill switch engaged"))
	assert.False(t, th.Fire("kill-switch", "kill switch engaged"))

	current = current.Add(2 * time.Minute)
	assert.True(t, th.Fire("kill-switch", "kill switch engaged"))
}

func TestThrottledFireIndependentPerKey(t *testing.T) {
	th := NewThrottled(zaptest.NewLogger(t), time.Minute)
	assert.True(t, th.Fire("chain-42161-fail-rate", "fail rate exceeded"))
	assert.True(t, th.Fire("chain-10-fail-rate", "fail rate exceeded"))
}

func TestThrottledReset(t *testing.T) {
	th := NewThrottled(zaptest.NewLogger(t), time.Hour)
	assert.True(t, th.Fire("sequencer-down", "sequencer down"))
	assert.False(t, th.Fire("sequencer-down", "sequencer down"))
	th.Reset("sequencer-down")
	assert.True(t, th.Fire("sequencer-down", "sequencer down"))
}

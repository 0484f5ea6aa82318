package rpcpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestWSAvailableFalseWithNoURLs(t *testing.T) {
	p := New(nil, nil, zaptest.NewLogger(t))
	assert.False(t, p.WSAvailable())
}

func TestWSAvailableRespectsDisableCooldown(t *testing.T) {
	p := New(nil, []string{"wss://example"}, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	p.nowFunc = func() time.Time { return current }

	assert.True(t, p.WSAvailable())
	p.DisableWSFor(time.Minute)
	assert.False(t, p.WSAvailable())

	current = current.Add(2 * time.Minute)
	assert.True(t, p.WSAvailable())
}

func TestRecordCloseEventTripsBurstThreshold(t *testing.T) {
	p := New(nil, []string{"wss://example"}, zaptest.NewLogger(t), WithCloseBurstPolicy(time.Minute, 3))
	current := time.Unix(0, 0)
	p.nowFunc = func() time.Time { return current }

	assert.False(t, p.RecordCloseEvent())
	assert.False(t, p.RecordCloseEvent())
	assert.True(t, p.RecordCloseEvent())
}

func TestRecordCloseEventWindowExpires(t *testing.T) {
	p := New(nil, []string{"wss://example"}, zaptest.NewLogger(t), WithCloseBurstPolicy(time.Minute, 2))
	current := time.Unix(0, 0)
	p.nowFunc = func() time.Time { return current }

	assert.False(t, p.RecordCloseEvent())
	current = current.Add(2 * time.Minute)
	assert.False(t, p.RecordCloseEvent())
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	p := New(nil, nil, zaptest.NewLogger(t), WithBackoffBounds(5*time.Second, 20*time.Second))

	assert.Equal(t, 5*time.Second, p.NextBackoff())
	assert.Equal(t, 10*time.Second, p.NextBackoff())
	assert.Equal(t, 20*time.Second, p.NextBackoff())
	assert.Equal(t, 20*time.Second, p.NextBackoff())
}

func TestResetBackoffRestoresInitial(t *testing.T) {
	p := New(nil, nil, zaptest.NewLogger(t), WithBackoffBounds(5*time.Second, 20*time.Second))
	p.NextBackoff()
	p.NextBackoff()
	p.ResetBackoff()
	assert.Equal(t, 5*time.Second, p.NextBackoff())
}

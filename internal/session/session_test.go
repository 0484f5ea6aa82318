package session

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReserveSendRespectsLiveExecutionCap(t *testing.T) {
	c := New(1, decimal.NewFromInt(1_000_000))

	assert.True(t, c.ReserveSend(decimal.NewFromInt(100)))
	assert.False(t, c.ReserveSend(decimal.NewFromInt(100)))
}

func TestReserveSendRespectsNotionalCap(t *testing.T) {
	c := New(10, decimal.NewFromInt(500))

	assert.True(t, c.ReserveSend(decimal.NewFromInt(300)))
	assert.False(t, c.ReserveSend(decimal.NewFromInt(300)))
}

func TestRecordErrorReleasesLiveExecutionSlot(t *testing.T) {
	c := New(1, decimal.NewFromInt(1_000_000))

	assert.True(t, c.ReserveSend(decimal.NewFromInt(100)))
	c.RecordError()
	assert.True(t, c.ReserveSend(decimal.NewFromInt(100)))

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.PlansError)
	assert.True(t, snap.SessionNotionalUSD.Equal(decimal.NewFromInt(200)))
}

func TestCapsExceeded(t *testing.T) {
	c := New(1, decimal.NewFromInt(100))
	assert.False(t, c.CapsExceeded())
	c.ReserveSend(decimal.NewFromInt(100))
	assert.True(t, c.CapsExceeded())
}

func TestZeroCapsMeanUnlimited(t *testing.T) {
	c := New(0, decimal.Zero)
	for i := 0; i < 50; i++ {
		assert.True(t, c.ReserveSend(decimal.NewFromInt(1_000_000)))
	}
	assert.False(t, c.CapsExceeded())
}

package ingest

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesRepeatedTriggers(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	var calls int32

	d.Trigger("borrower-1", func() { atomic.AddInt32(&calls, 1) })
	time.Sleep(5 * time.Millisecond)
	d.Trigger("borrower-1", func() { atomic.AddInt32(&calls, 1) })
	time.Sleep(5 * time.Millisecond)
	d.Trigger("borrower-1", func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncerKeepsKeysIndependent(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	var calls int32

	d.Trigger("a", func() { atomic.AddInt32(&calls, 1) })
	d.Trigger("b", func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

package pricecache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestGetCachesSuccessWithinTTL(t *testing.T) {
	c := New(time.Minute, 5*time.Second, false, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	c.nowFunc = func() time.Time { return current }

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.Get("k", fetch)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.Get("k", fetch)
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestGetRefetchesAfterSuccessTTLExpires(t *testing.T) {
	c := New(time.Minute, 5*time.Second, false, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	c.nowFunc = func() time.Time { return current }

	calls := 0
	fetch := func() (interface{}, error) { calls++; return calls, nil }

	c.Get("k", fetch)
	current = current.Add(2 * time.Minute)
	v, _, _ := c.Get("k", fetch)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestGetStickyOnErrorServesLastGoodValue(t *testing.T) {
	c := New(time.Minute, 5*time.Second, true, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	c.nowFunc = func() time.Time { return current }

	c.Get("k", func() (interface{}, error) { return "good", nil })

	current = current.Add(2 * time.Minute)
	v, _, err := c.Get("k", func() (interface{}, error) { return nil, errors.New("rpc down") })

	assert.NoError(t, err)
	assert.Equal(t, "good", v)
}

func TestGetNonStickyPropagatesError(t *testing.T) {
	c := New(time.Minute, 5*time.Second, false, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	c.nowFunc = func() time.Time { return current }

	c.Get("k", func() (interface{}, error) { return "good", nil })
	current = current.Add(2 * time.Minute)

	_, _, err := c.Get("k", func() (interface{}, error) { return nil, errors.New("rpc down") })
	assert.Error(t, err)
}

func TestGetFailureCachedWithinFailureTTLDoesNotRefetch(t *testing.T) {
	c := New(time.Minute, 5*time.Second, false, zaptest.NewLogger(t))
	current := time.Unix(0, 0)
	c.nowFunc = func() time.Time { return current }

	calls := 0
	fetch := func() (interface{}, error) { calls++; return nil, errors.New("down") }

	_, _, err1 := c.Get("k", fetch)
	_, _, err2 := c.Get("k", fetch)
	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.Equal(t, 1, calls)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := New(time.Minute, 5*time.Second, false, zaptest.NewLogger(t))
	calls := 0
	fetch := func() (interface{}, error) { calls++; return calls, nil }

	c.Get("k", fetch)
	c.Invalidate("k")
	v, hit, _ := c.Get("k", fetch)
	assert.False(t, hit)
	assert.Equal(t, 2, v)
}

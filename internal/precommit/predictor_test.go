package precommit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveSeedsThenSmoothsEMA(t *testing.T) {
	f := NewFeedState(0.2)
	base := time.Unix(0, 0)

	f.Observe(base)
	assert.Equal(t, 0, f.Samples())

	f.Observe(base.Add(10 * time.Second))
	assert.Equal(t, 1, f.Samples())
	assert.InDelta(t, 10, f.EMAIntervalSeconds(), 1e-9)

	f.Observe(base.Add(20 * time.Second))
	assert.Equal(t, 2, f.Samples())
	assert.InDelta(t, 0.2*10+0.8*10, f.EMAIntervalSeconds(), 1e-9)
}

func TestEligibleRequiresAllConditions(t *testing.T) {
	f := NewFeedState(0.2)
	base := time.Unix(0, 0)
	f.Observe(base)
	f.Observe(base.Add(10 * time.Second))
	f.Observe(base.Add(20 * time.Second))

	now := base.Add(50 * time.Second) // age 30s, ema ~10s -> age_factor 2 satisfied

	elig := Eligibility{
		MinSamples:   2,
		AgeFactor:    2.0,
		GapBps:       40,
		MinGapBps:    30,
		HealthFactor: 1.01,
		HFMax:        1.0,
		HFMargin:     0.05,
	}
	assert.True(t, f.Eligible(now, elig))

	tooFewSamples := elig
	tooFewSamples.MinSamples = 10
	assert.False(t, f.Eligible(now, tooFewSamples))

	hfOutOfBand := elig
	hfOutOfBand.HealthFactor = 0.9
	assert.False(t, f.Eligible(now, hfOutOfBand))

	gapTooSmall := elig
	gapTooSmall.GapBps = 10
	assert.False(t, f.Eligible(now, gapTooSmall))
}

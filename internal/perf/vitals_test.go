package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vitalsCollector(t *testing.T) (*Collector, *fakeProvider) {
	t.Helper()
	provider := newFakeProvider(EntryLCP, EntryFirstInput, EntryLayoutShift)
	c := NewCollector(provider)
	c.Start()
	t.Cleanup(c.Stop)
	return c, provider
}

func TestWebVitals_LCPRating(t *testing.T) {
	tests := []struct {
		name      string
		startTime float64
		rating    VitalRating
	}{
		{"good at 2500", 2500, RatingGood},
		{"needs improvement at 4000", 4000, RatingNeedsImprovement},
		{"poor past 4000", 4001, RatingPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, provider := vitalsCollector(t)

			provider.deliver(Entry{Type: EntryLCP, StartTime: tt.startTime})

			vitals := c.WebVitalsSnapshot()
			require.NotNil(t, vitals.LCP)
			assert.Equal(t, tt.startTime, vitals.LCP.Value)
			assert.Equal(t, tt.rating, vitals.LCP.Rating)
		})
	}
}

func TestWebVitals_FIDValueIsProcessingDelay(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryFirstInput, StartTime: 1000, ProcessingStart: 1085})

	vitals := c.WebVitalsSnapshot()
	require.NotNil(t, vitals.FID)
	assert.Equal(t, 85.0, vitals.FID.Value)
	assert.Equal(t, RatingGood, vitals.FID.Rating)
}

func TestWebVitals_FIDRatingBoundaries(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryFirstInput, StartTime: 0, ProcessingStart: 301})

	vitals := c.WebVitalsSnapshot()
	require.NotNil(t, vitals.FID)
	assert.Equal(t, RatingPoor, vitals.FID.Rating)
}

func TestWebVitals_CLSAccumulates(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.05})
	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.04})

	vitals := c.WebVitalsSnapshot()
	require.NotNil(t, vitals.CLS)
	assert.InDelta(t, 0.09, vitals.CLS.Value, 1e-9)
	assert.Equal(t, RatingGood, vitals.CLS.Rating)

	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.1})

	vitals = c.WebVitalsSnapshot()
	assert.InDelta(t, 0.19, vitals.CLS.Value, 1e-9)
	assert.Equal(t, RatingNeedsImprovement, vitals.CLS.Rating)
}

func TestWebVitals_CLSIgnoresShiftsWithRecentInput(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.3, HadRecentInput: true})

	assert.Nil(t, c.WebVitalsSnapshot().CLS)
}

func TestWebVitals_CLSOnlyResetsOnClear(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.2})
	require.NotNil(t, c.WebVitalsSnapshot().CLS)

	c.Clear()

	assert.Nil(t, c.WebVitalsSnapshot().CLS)

	// accumulation restarts from zero
	provider.deliver(Entry{Type: EntryLayoutShift, Value: 0.05})
	vitals := c.WebVitalsSnapshot()
	require.NotNil(t, vitals.CLS)
	assert.InDelta(t, 0.05, vitals.CLS.Value, 1e-9)
}

func TestWebVitals_LCPOverwritesInPlace(t *testing.T) {
	c, provider := vitalsCollector(t)

	provider.deliver(Entry{Type: EntryLCP, StartTime: 1200})
	provider.deliver(Entry{Type: EntryLCP, StartTime: 3100})

	vitals := c.WebVitalsSnapshot()
	require.NotNil(t, vitals.LCP)
	assert.Equal(t, 3100.0, vitals.LCP.Value)
	assert.Equal(t, RatingNeedsImprovement, vitals.LCP.Rating)
}

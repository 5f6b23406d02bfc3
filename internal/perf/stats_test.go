package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func durations(values ...float64) []CustomSample {
	samples := make([]CustomSample, len(values))
	for i, v := range values {
		samples[i] = CustomSample{Name: "m", Duration: v}
	}
	return samples
}

func TestCalculateStats_NearestRankPercentiles(t *testing.T) {
	stats := CalculateStats(durations(10, 20, 30, 40, 100))

	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 10.0, stats.Min)
	assert.Equal(t, 100.0, stats.Max)
	assert.Equal(t, 40.0, stats.Average)
	// nearest rank: floor(5*0.95)=4, floor(5*0.99)=4
	assert.Equal(t, 100.0, stats.P95)
	assert.Equal(t, 100.0, stats.P99)
}

func TestCalculateStats_EmptyInput(t *testing.T) {
	stats := CalculateStats([]CustomSample{})

	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0.0, stats.Average)
	assert.Equal(t, 0.0, stats.Min)
	assert.Equal(t, 0.0, stats.Max)
	assert.Equal(t, 0.0, stats.P95)
	assert.Equal(t, 0.0, stats.P99)
	assert.Empty(t, stats.Recent)
}

func TestCalculateStats_RecentKeepsLastTenInOrder(t *testing.T) {
	samples := durations(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	stats := CalculateStats(samples)

	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, stats.Recent)
}

func TestCalculateStats_SingleSample(t *testing.T) {
	stats := CalculateStats(durations(42))

	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 42.0, stats.Min)
	assert.Equal(t, 42.0, stats.Max)
	assert.Equal(t, 42.0, stats.P95)
	assert.Equal(t, 42.0, stats.P99)
}

func TestCalculateStats_UnsortedInput(t *testing.T) {
	stats := CalculateStats(durations(50, 10, 90, 30, 70))

	assert.Equal(t, 10.0, stats.Min)
	assert.Equal(t, 90.0, stats.Max)
	assert.Equal(t, 50.0, stats.Average)
	// recent preserves insertion order, not sorted order
	assert.Equal(t, []float64{50, 10, 90, 30, 70}, stats.Recent)
}

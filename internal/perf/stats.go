package perf

import (
	"sort"
)

// Durationer is implemented by every sample kind that carries a duration
type Durationer interface {
	DurationMS() float64
}

// Stats summarizes a set of duration samples
type Stats struct {
	Count   int       `json:"count"`
	Average float64   `json:"average_ms"`
	Min     float64   `json:"min_ms"`
	Max     float64   `json:"max_ms"`
	P95     float64   `json:"p95_ms"`
	P99     float64   `json:"p99_ms"`
	Recent  []float64 `json:"recent_ms"`
}

// CalculateStats computes count, average, min, max and nearest-rank p95/p99
// over the samples' durations, plus the last 10 durations in insertion order.
// An empty input returns the zero struct.
func CalculateStats[S Durationer](samples []S) Stats {
	if len(samples) == 0 {
		return Stats{Recent: []float64{}}
	}

	durations := make([]float64, len(samples))
	sum := 0.0
	for i, s := range samples {
		durations[i] = s.DurationMS()
		sum += durations[i]
	}

	recentN := 10
	if recentN > len(durations) {
		recentN = len(durations)
	}
	recent := make([]float64, recentN)
	copy(recent, durations[len(durations)-recentN:])

	sorted := make([]float64, len(durations))
	copy(sorted, durations)
	sort.Float64s(sorted)

	return Stats{
		Count:   len(samples),
		Average: sum / float64(len(samples)),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		P95:     percentile(sorted, 0.95),
		P99:     percentile(sorted, 0.99),
		Recent:  recent,
	}
}

// percentile uses nearest-rank indexing: floor(n*p), clamped to the last
// element. The input must be sorted ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

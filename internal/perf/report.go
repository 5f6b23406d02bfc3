package perf

import (
	"time"
)

// EndpointStats extends Stats with API-specific ratios
type EndpointStats struct {
	Stats
	ErrorRate    float64 `json:"error_rate"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// MemoryStats summarizes the memory sample window
type MemoryStats struct {
	Count       int   `json:"count"`
	CurrentUsed int64 `json:"current_used_bytes"`
	AverageUsed int64 `json:"average_used_bytes"`
	PeakUsed    int64 `json:"peak_used_bytes"`
	Limit       int64 `json:"limit_bytes"`
}

// Report is a read-only snapshot of everything the collector currently knows
type Report struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Active       bool                     `json:"monitoring_active"`
	API          map[string]EndpointStats `json:"api"`
	Interactions map[string]Stats         `json:"interactions"`
	Memory       MemoryStats              `json:"memory"`
	WebVitals    WebVitals                `json:"web_vitals"`
	Bottlenecks  []Bottleneck             `json:"bottlenecks"`
	Navigation   *NavigationTiming        `json:"navigation,omitempty"`
	Resources    []ResourceSample         `json:"resources"`
	Custom       map[string]Stats         `json:"custom"`
}

// APIStats returns per-endpoint statistics
func (c *Collector) APIStats() map[string]EndpointStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiStatsLocked()
}

func (c *Collector) apiStatsLocked() map[string]EndpointStats {
	out := make(map[string]EndpointStats, len(c.api))
	for endpoint, r := range c.api {
		samples := r.values()
		stats := CalculateStats(samples)

		errors, cached := 0, 0
		for _, s := range samples {
			if s.Status >= 400 {
				errors++
			}
			if s.Cached {
				cached++
			}
		}

		es := EndpointStats{Stats: stats}
		if len(samples) > 0 {
			es.ErrorRate = float64(errors) / float64(len(samples))
			es.CacheHitRate = float64(cached) / float64(len(samples))
		}
		out[endpoint] = es
	}
	return out
}

// InteractionStats returns per-interaction-type statistics
func (c *Collector) InteractionStats() map[string]Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interactionStatsLocked()
}

func (c *Collector) interactionStatsLocked() map[string]Stats {
	out := make(map[string]Stats, len(c.interactions))
	for t, r := range c.interactions {
		out[t] = CalculateStats(r.values())
	}
	return out
}

// CustomStats returns per-metric statistics
func (c *Collector) CustomStats() map[string]Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.customStatsLocked()
}

func (c *Collector) customStatsLocked() map[string]Stats {
	out := make(map[string]Stats, len(c.custom))
	for name, r := range c.custom {
		out[name] = CalculateStats(r.values())
	}
	return out
}

// MemoryUsage summarizes the memory sample window
func (c *Collector) MemoryUsage() MemoryStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryStatsLocked()
}

func (c *Collector) memoryStatsLocked() MemoryStats {
	samples := c.memorySamp.values()
	if len(samples) == 0 {
		return MemoryStats{}
	}

	var sum, peak int64
	for _, s := range samples {
		sum += s.Used
		if s.Used > peak {
			peak = s.Used
		}
	}
	latest := samples[len(samples)-1]
	return MemoryStats{
		Count:       len(samples),
		CurrentUsed: latest.Used,
		AverageUsed: sum / int64(len(samples)),
		PeakUsed:    peak,
		Limit:       latest.Limit,
	}
}

// Snapshot builds a point-in-time performance report: per-endpoint API
// stats, interaction stats, memory summary, web vitals, bottlenecks newest
// first, navigation timing, the last 20 resource samples and custom metrics
func (c *Collector) Snapshot() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bottlenecks := c.bottlenecks.values()
	newestFirst := make([]Bottleneck, 0, len(bottlenecks))
	for i := len(bottlenecks) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, bottlenecks[i])
	}

	var nav *NavigationTiming
	if c.navigation != nil {
		stored := *c.navigation
		nav = &stored
	}

	return Report{
		GeneratedAt:  time.Now(),
		Active:       c.active,
		API:          c.apiStatsLocked(),
		Interactions: c.interactionStatsLocked(),
		Memory:       c.memoryStatsLocked(),
		WebVitals:    cloneVitals(c.vitals),
		Bottlenecks:  newestFirst,
		Navigation:   nav,
		Resources:    c.resources.last(20),
		Custom:       c.customStatsLocked(),
	}
}

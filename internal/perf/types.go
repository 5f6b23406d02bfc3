package perf

import (
	"time"
)

// Ring buffer capacities for each sample category
const (
	maxAPISamples         = 50
	maxInteractionSamples = 30
	maxMemorySamples      = 100
	maxCustomSamples      = 30
	maxResourceSamples    = 100
	maxBottlenecks        = 50
)

// DefaultMemoryInterval is how often the memory sampler runs
const DefaultMemoryInterval = 30 * time.Second

// Thresholds holds the limits used for bottleneck detection
type Thresholds struct {
	APIResponseTime  float64 `json:"api_response_time_ms"`
	MemoryUsage      int64   `json:"memory_usage_bytes"`
	RenderTime       float64 `json:"render_time_ms"`
	InteractionDelay float64 `json:"interaction_delay_ms"`
	BundleSize       int64   `json:"bundle_size_bytes"`
}

// DefaultThresholds returns the thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		APIResponseTime:  2000,
		MemoryUsage:      100 * 1024 * 1024,
		RenderTime:       100,
		InteractionDelay: 300,
		BundleSize:       500 * 1024,
	}
}

// ThresholdPatch is a partial threshold update; nil fields are left unchanged
type ThresholdPatch struct {
	APIResponseTime  *float64 `json:"api_response_time_ms,omitempty"`
	MemoryUsage      *int64   `json:"memory_usage_bytes,omitempty"`
	RenderTime       *float64 `json:"render_time_ms,omitempty"`
	InteractionDelay *float64 `json:"interaction_delay_ms,omitempty"`
	BundleSize       *int64   `json:"bundle_size_bytes,omitempty"`
}

// APISample records a single API call measurement
type APISample struct {
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	Duration     float64   `json:"duration_ms"`
	TransferSize int64     `json:"transfer_size_bytes"`
	Status       int       `json:"status"`
	Cached       bool      `json:"cached"`
	Retried      bool      `json:"retried"`
	Timestamp    time.Time `json:"timestamp"`
}

// DurationMS implements Durationer
func (s APISample) DurationMS() float64 { return s.Duration }

// InteractionSample records a single user interaction measurement
type InteractionSample struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Duration  float64   `json:"duration_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// DurationMS implements Durationer
func (s InteractionSample) DurationMS() float64 { return s.Duration }

// MemorySample records a point-in-time memory snapshot
type MemorySample struct {
	Used      int64     `json:"used_bytes"`
	Total     int64     `json:"total_bytes"`
	Limit     int64     `json:"limit_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// CustomSample records a caller-defined timing measurement
type CustomSample struct {
	Name      string                 `json:"name"`
	Duration  float64                `json:"duration_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// DurationMS implements Durationer
func (s CustomSample) DurationMS() float64 { return s.Duration }

// ResourceSample records a generic (non-API) resource load
type ResourceSample struct {
	Name         string    `json:"name"`
	Kind         string    `json:"kind,omitempty"`
	Duration     float64   `json:"duration_ms"`
	TransferSize int64     `json:"transfer_size_bytes"`
	Timestamp    time.Time `json:"timestamp"`
}

// DurationMS implements Durationer
func (s ResourceSample) DurationMS() float64 { return s.Duration }

// NavigationTiming holds the timing breakdown of the initial page load
type NavigationTiming struct {
	DOMContentLoaded float64   `json:"dom_content_loaded_ms"`
	LoadComplete     float64   `json:"load_complete_ms"`
	DOMInteractive   float64   `json:"dom_interactive_ms"`
	TimeToFirstByte  float64   `json:"time_to_first_byte_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// BottleneckKind identifies which threshold rule a bottleneck came from
type BottleneckKind string

// Bottleneck kinds
const (
	BottleneckAPISlowResponse  BottleneckKind = "api_slow_response"
	BottleneckInteractionDelay BottleneckKind = "interaction_delay"
	BottleneckCustomMetricSlow BottleneckKind = "custom_metric_slow"
)

// Severity classifies how far past its threshold a measurement landed
type Severity string

// Severity levels
const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Bottleneck records a measurement that exceeded its configured threshold
type Bottleneck struct {
	Kind      BottleneckKind `json:"kind"`
	Subject   string         `json:"subject"`
	Duration  float64        `json:"duration_ms"`
	Threshold float64        `json:"threshold_ms"`
	Severity  Severity       `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alert types delivered to subscribers
const (
	AlertAPISlowResponse  = "api_slow_response"
	AlertInteractionDelay = "interaction_delay"
	AlertCustomMetricSlow = "custom_metric_slow"
	AlertMemoryUsageHigh  = "memory_usage_high"
)

// Alert is delivered synchronously to every registered subscriber
type Alert struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// MemoryAlertPayload is the payload of a memory_usage_high alert
type MemoryAlertPayload struct {
	Used      int64    `json:"used_bytes"`
	Threshold int64    `json:"threshold_bytes"`
	Severity  Severity `json:"severity"`
}

// AlertFunc receives alerts; it must not block
type AlertFunc func(Alert)

// VitalRating is the standard three-level Web Vital classification
type VitalRating string

// Vital ratings
const (
	RatingGood             VitalRating = "good"
	RatingNeedsImprovement VitalRating = "needs-improvement"
	RatingPoor             VitalRating = "poor"
)

// Vital holds the current value of a single Web Vital
type Vital struct {
	Value     float64     `json:"value"`
	Rating    VitalRating `json:"rating"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebVitals holds one slot per tracked vital; nil means not yet observed
type WebVitals struct {
	LCP *Vital `json:"lcp,omitempty"`
	FID *Vital `json:"fid,omitempty"`
	CLS *Vital `json:"cls,omitempty"`
}

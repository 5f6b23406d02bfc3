package models

import (
	"fmt"
	"strings"
)

// Entry types accepted on the ingestion endpoint
var validEntryTypes = map[string]bool{
	"navigation":               true,
	"resource":                 true,
	"event":                    true,
	"largest-contentful-paint": true,
	"first-input":              true,
	"layout-shift":             true,
}

// EntrySample is one performance timeline entry reported by a client.
// Which fields are meaningful depends on the entry type.
type EntrySample struct {
	Type            string  `json:"type" binding:"required"`
	Name            string  `json:"name"`
	StartTime       float64 `json:"start_time"`
	Duration        float64 `json:"duration"`
	ProcessingStart float64 `json:"processing_start,omitempty"`
	TransferSize    int64   `json:"transfer_size,omitempty"`
	ResponseStatus  int     `json:"response_status,omitempty"`
	Value           float64 `json:"value,omitempty"`
	HadRecentInput  bool    `json:"had_recent_input,omitempty"`
	Target          string  `json:"target,omitempty"`

	Navigation *NavigationSample `json:"navigation,omitempty"`
}

// Validate validates a single entry sample
func (e *EntrySample) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("entry type is required")
	}
	if !validEntryTypes[e.Type] {
		return fmt.Errorf("invalid entry type: %s", e.Type)
	}
	if e.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// NavigationSample is the page-load timing breakdown of a navigation entry
type NavigationSample struct {
	DOMContentLoaded float64 `json:"dom_content_loaded"`
	LoadComplete     float64 `json:"load_complete"`
	DOMInteractive   float64 `json:"dom_interactive"`
	TimeToFirstByte  float64 `json:"time_to_first_byte"`
}

// APICallSample is one completed API call reported by a client
type APICallSample struct {
	Endpoint     string  `json:"endpoint" binding:"required"`
	Method       string  `json:"method"`
	Duration     float64 `json:"duration" binding:"required"`
	Status       int     `json:"status"`
	TransferSize int64   `json:"transfer_size,omitempty"`
	Cached       bool    `json:"cached,omitempty"`
	Retried      bool    `json:"retried,omitempty"`
}

// Validate validates a single API call sample
func (s *APICallSample) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// Normalize fills in defaults and canonicalizes the method
func (s *APICallSample) Normalize() {
	if s.Method == "" {
		s.Method = "GET"
	}
	s.Method = strings.ToUpper(s.Method)
}

// CustomMetricSample is one caller-defined timing measurement
type CustomMetricSample struct {
	Name     string                 `json:"name" binding:"required"`
	Duration float64                `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate validates a single custom metric sample
func (s *CustomMetricSample) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// SamplesRequest is the ingestion payload: any mix of timeline entries,
// API call timings and custom metrics
type SamplesRequest struct {
	Entries []EntrySample        `json:"entries,omitempty"`
	API     []APICallSample      `json:"api,omitempty"`
	Custom  []CustomMetricSample `json:"custom,omitempty"`
}

// Validate validates the ingestion payload
func (r *SamplesRequest) Validate() error {
	if len(r.Entries) == 0 && len(r.API) == 0 && len(r.Custom) == 0 {
		return fmt.Errorf("at least one sample is required")
	}
	for i := range r.Entries {
		if err := r.Entries[i].Validate(); err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
	}
	for i := range r.API {
		if err := r.API[i].Validate(); err != nil {
			return fmt.Errorf("api[%d]: %w", i, err)
		}
	}
	for i := range r.Custom {
		if err := r.Custom[i].Validate(); err != nil {
			return fmt.Errorf("custom[%d]: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of samples in the payload
func (r *SamplesRequest) Count() int {
	return len(r.Entries) + len(r.API) + len(r.Custom)
}

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulse/internal/models"
	"pulse/internal/perf"
)

// Collector is the slice of the performance collector the telemetry
// handlers depend on
type Collector interface {
	Ingest(e perf.Entry)
	RecordAPICall(endpoint, method string, start, end time.Time, opts perf.APICallOptions) perf.APISample
	RecordCustomMetric(name string, duration float64, metadata map[string]interface{}) perf.CustomSample
	Snapshot() perf.Report
	Export(format perf.Format) ([]byte, error)
	UpdateThresholds(patch perf.ThresholdPatch) perf.Thresholds
	GetThresholds() perf.Thresholds
	Clear()
	Active() bool
}

// TelemetryHandlers contains handlers for sample ingestion and reporting
type TelemetryHandlers struct {
	collector Collector
}

// NewTelemetryHandlers creates new telemetry handlers
func NewTelemetryHandlers(collector Collector) *TelemetryHandlers {
	return &TelemetryHandlers{collector: collector}
}

// IngestSamples returns a handler that stores a batch of reported samples
func (h *TelemetryHandlers) IngestSamples() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SamplesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"INVALID_REQUEST",
				"Invalid request body: "+err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"VALIDATION_ERROR",
				err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		for i := range req.Entries {
			h.collector.Ingest(toEntry(req.Entries[i]))
		}

		for i := range req.API {
			sample := req.API[i]
			sample.Normalize()
			end := time.Now()
			start := end.Add(-time.Duration(sample.Duration * float64(time.Millisecond)))
			h.collector.RecordAPICall(sample.Endpoint, sample.Method, start, end, perf.APICallOptions{
				Status:       sample.Status,
				TransferSize: sample.TransferSize,
				Cached:       sample.Cached,
				Retried:      sample.Retried,
			})
		}

		for i := range req.Custom {
			sample := req.Custom[i]
			h.collector.RecordCustomMetric(sample.Name, sample.Duration, sample.Metadata)
		}

		c.JSON(http.StatusAccepted, models.SamplesResponse{Accepted: req.Count()})
	}
}

// Report returns a handler that serves the current performance report
func (h *TelemetryHandlers) Report() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.collector.Snapshot())
	}
}

// ExportReport returns a handler that serves the report as a download.
// The format query parameter selects json or csv.
func (h *TelemetryHandlers) ExportReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		format := perf.Format(c.DefaultQuery("format", string(perf.FormatJSON)))

		data, err := h.collector.Export(format)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"INVALID_FORMAT",
				err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		contentType := "application/json"
		if format == perf.FormatCSV {
			contentType = "text/csv"
		}

		filename := fmt.Sprintf("performance-report-%s.%s", time.Now().Format("20060102-150405"), format)
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, contentType, data)
	}
}

// GetThresholds returns a handler that serves the active thresholds
func (h *TelemetryHandlers) GetThresholds() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.collector.GetThresholds())
	}
}

// UpdateThresholds returns a handler that applies a partial threshold
// update and serves the resulting thresholds
func (h *TelemetryHandlers) UpdateThresholds() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch perf.ThresholdPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"INVALID_REQUEST",
				"Invalid request body: "+err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		if err := validateThresholdPatch(patch); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"VALIDATION_ERROR",
				err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		c.JSON(http.StatusOK, h.collector.UpdateThresholds(patch))
	}
}

// ClearMetrics returns a handler that discards all collected samples
func (h *TelemetryHandlers) ClearMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.collector.Clear()
		c.Status(http.StatusNoContent)
	}
}

func validateThresholdPatch(patch perf.ThresholdPatch) error {
	if patch.APIResponseTime != nil && *patch.APIResponseTime <= 0 {
		return fmt.Errorf("api_response_time_ms must be positive")
	}
	if patch.MemoryUsage != nil && *patch.MemoryUsage <= 0 {
		return fmt.Errorf("memory_usage_bytes must be positive")
	}
	if patch.RenderTime != nil && *patch.RenderTime <= 0 {
		return fmt.Errorf("render_time_ms must be positive")
	}
	if patch.InteractionDelay != nil && *patch.InteractionDelay <= 0 {
		return fmt.Errorf("interaction_delay_ms must be positive")
	}
	if patch.BundleSize != nil && *patch.BundleSize <= 0 {
		return fmt.Errorf("bundle_size_bytes must be positive")
	}
	return nil
}

// toEntry converts an ingested sample to a collector entry
func toEntry(e models.EntrySample) perf.Entry {
	entry := perf.Entry{
		Type:            perf.EntryType(e.Type),
		Name:            e.Name,
		StartTime:       e.StartTime,
		Duration:        e.Duration,
		ProcessingStart: e.ProcessingStart,
		TransferSize:    e.TransferSize,
		ResponseStatus:  e.ResponseStatus,
		Value:           e.Value,
		HadRecentInput:  e.HadRecentInput,
		Target:          e.Target,
	}

	if e.Navigation != nil {
		entry.Navigation = &perf.NavigationTiming{
			DOMContentLoaded: e.Navigation.DOMContentLoaded,
			LoadComplete:     e.Navigation.LoadComplete,
			DOMInteractive:   e.Navigation.DOMInteractive,
			TimeToFirstByte:  e.Navigation.TimeToFirstByte,
			Timestamp:        time.Now(),
		}
	}

	return entry
}

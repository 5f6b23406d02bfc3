package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RequestData carries the caller-supplied parts of a single request
type RequestData struct {
	Method  string            `json:"method"`
	Params  map[string]string `json:"params,omitempty"`
	Body    json.RawMessage   `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Item is one request inside a dispatched batch payload. The field set is
// the wire contract shared with any server-side batch endpoint; it must
// not change shape.
type Item struct {
	ID       string            `json:"id"`
	Method   string            `json:"method"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Envelope is the POST body of a dispatched batch
type Envelope struct {
	Requests []Item `json:"requests"`
}

// ItemResult is the per-request entry of a batch response
type ItemResult struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  int             `json:"status,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// ResponseEnvelope is the response body of a dispatched batch
type ResponseEnvelope struct {
	Responses []ItemResult `json:"responses"`
}

// Rule routes endpoints matching a pattern substring to a batch endpoint
type Rule struct {
	Pattern       string
	BatchEndpoint string
	MaxSize       int
	Timeout       time.Duration
}

// Sentinel errors
var (
	// ErrNotBatchable reports a caller contract violation: the endpoint
	// matches no configured rule. Callers check IsBatchable first.
	ErrNotBatchable = errors.New("endpoint is not batchable")

	// ErrBatchCleared fails every request queued at the time of Clear
	ErrBatchCleared = errors.New("batch cleared")

	// ErrNoResponse fails a request whose id is absent from the server reply
	ErrNoResponse = errors.New("no response received")

	// ErrDestroyed fails requests submitted after Destroy
	ErrDestroyed = errors.New("batcher destroyed")
)

// ItemError carries the server-reported failure of a single batched request
type ItemError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface
func (e *ItemError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("batch item failed with status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("batch item failed with status %d: %s", e.Status, e.Message)
}

// Stats is a point-in-time view of the batcher's queues
type Stats struct {
	ActiveBatches  int           `json:"active_batches"`
	TotalPending   int           `json:"total_pending"`
	OldestBatchAge time.Duration `json:"oldest_batch_age"`
	SizeHistogram  map[int]int   `json:"size_histogram"`
	AverageSize    float64       `json:"average_size"`
}

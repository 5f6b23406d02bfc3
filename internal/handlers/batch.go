package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"pulse/internal/batch"
	"pulse/internal/client"
	"pulse/internal/models"
)

// DefaultMaxBatchItems caps how many requests one envelope may carry
const DefaultMaxBatchItems = 50

// Dispatcher is the slice of the request batcher the batch handlers
// depend on
type Dispatcher interface {
	ExecuteWithBatching(ctx context.Context, endpoint string, data batch.RequestData) (json.RawMessage, error)
	FlushAll()
	GetStats() batch.Stats
}

// BatchHandlers contains handlers for the server-side batch endpoint
type BatchHandlers struct {
	dispatcher Dispatcher
	maxItems   int
}

// NewBatchHandlers creates new batch handlers
func NewBatchHandlers(dispatcher Dispatcher) *BatchHandlers {
	return &BatchHandlers{
		dispatcher: dispatcher,
		maxItems:   DefaultMaxBatchItems,
	}
}

// Execute returns a handler that fans a batch envelope out to the
// upstream API and assembles the per-request results. Requests to
// batchable endpoints are coalesced across concurrent envelopes.
func (h *BatchHandlers) Execute() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batch.Envelope
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				"INVALID_REQUEST",
				"Invalid request body: "+err.Error(),
				c.GetString("request_id"),
			))
			return
		}

		if err := validateEnvelope(req, h.maxItems); err != nil {
			status := http.StatusBadRequest
			code := "VALIDATION_ERROR"
			if errors.Is(err, errTooManyItems) {
				status = http.StatusRequestEntityTooLarge
				code = "BATCH_TOO_LARGE"
			}
			c.JSON(status, models.NewErrorResponse(code, err.Error(), c.GetString("request_id")))
			return
		}

		results := make([]batch.ItemResult, len(req.Requests))
		var wg sync.WaitGroup
		for i := range req.Requests {
			wg.Add(1)
			go func(i int, item batch.Item) {
				defer wg.Done()
				results[i] = h.executeItem(c.Request.Context(), item)
			}(i, req.Requests[i])
		}
		wg.Wait()

		c.JSON(http.StatusOK, batch.ResponseEnvelope{Responses: results})
	}
}

// Stats returns a handler that serves the batcher's queue statistics
func (h *BatchHandlers) Stats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.dispatcher.GetStats())
	}
}

// Flush returns a handler that dispatches every pending batch immediately
func (h *BatchHandlers) Flush() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.dispatcher.FlushAll()
		c.Status(http.StatusNoContent)
	}
}

func (h *BatchHandlers) executeItem(ctx context.Context, item batch.Item) batch.ItemResult {
	data := batch.RequestData{
		Method:  item.Method,
		Params:  item.Params,
		Body:    item.Data,
		Headers: item.Headers,
	}

	payload, err := h.dispatcher.ExecuteWithBatching(ctx, item.Endpoint, data)
	if err != nil {
		return itemFailure(item.ID, err)
	}

	return batch.ItemResult{
		ID:      item.ID,
		Success: true,
		Data:    payload,
	}
}

// itemFailure maps an upstream error onto the per-request result shape
func itemFailure(id string, err error) batch.ItemResult {
	var itemErr *batch.ItemError
	if errors.As(err, &itemErr) {
		return batch.ItemResult{
			ID:     id,
			Error:  itemErr.Message,
			Status: itemErr.Status,
			Code:   itemErr.Code,
		}
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return batch.ItemResult{
			ID:     id,
			Error:  apiErr.Message,
			Status: apiErr.Status,
			Code:   apiErr.Code,
		}
	}

	return batch.ItemResult{
		ID:     id,
		Error:  err.Error(),
		Status: http.StatusBadGateway,
		Code:   "UPSTREAM_ERROR",
	}
}

var errTooManyItems = errors.New("too many requests in batch")

func validateEnvelope(req batch.Envelope, maxItems int) error {
	if len(req.Requests) == 0 {
		return fmt.Errorf("at least one request is required")
	}
	if len(req.Requests) > maxItems {
		return fmt.Errorf("%w: %d exceeds limit of %d", errTooManyItems, len(req.Requests), maxItems)
	}

	seen := make(map[string]bool, len(req.Requests))
	for i, item := range req.Requests {
		if item.ID == "" {
			return fmt.Errorf("requests[%d]: id is required", i)
		}
		if item.Endpoint == "" {
			return fmt.Errorf("requests[%d]: endpoint is required", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("requests[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("VALIDATION_ERROR", "endpoint is required", "req-123")

	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	assert.Equal(t, "endpoint is required", resp.Message)
	assert.Equal(t, "req-123", resp.RequestID)
	assert.InDelta(t, time.Now().Unix(), resp.Timestamp, 2)
}

func TestErrorResponse_OmitsEmptyRequestID(t *testing.T) {
	resp := NewErrorResponse("INTERNAL_ERROR", "boom", "")

	encoded, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "request_id")
}

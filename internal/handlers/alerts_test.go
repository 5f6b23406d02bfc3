package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeStreamer struct {
	subscribed bool
	err        error
}

func (f *fakeStreamer) Subscribe(w http.ResponseWriter, r *http.Request) error {
	f.subscribed = true
	if f.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return f.err
	}
	return nil
}

func (f *fakeStreamer) ClientCount() int { return 0 }

func TestStream_DelegatesToStreamer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	streamer := &fakeStreamer{}
	h := NewAlertHandlers(streamer, zerolog.Nop())

	router := gin.New()
	router.GET("/v1/alerts/ws", h.Stream())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts/ws", nil))

	assert.True(t, streamer.subscribed)
}

func TestStream_UpgradeFailureAborts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	streamer := &fakeStreamer{err: errors.New("not a websocket handshake")}
	h := NewAlertHandlers(streamer, zerolog.Nop())

	router := gin.New()
	router.GET("/v1/alerts/ws", h.Stream())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/alerts/ws", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

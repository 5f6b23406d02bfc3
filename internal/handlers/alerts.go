package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AlertStreamer is the slice of the broadcast hub the alert handlers
// depend on
type AlertStreamer interface {
	Subscribe(w http.ResponseWriter, r *http.Request) error
	ClientCount() int
}

// AlertHandlers contains handlers for live alert streaming
type AlertHandlers struct {
	streamer AlertStreamer
	logger   zerolog.Logger
}

// NewAlertHandlers creates new alert handlers
func NewAlertHandlers(streamer AlertStreamer, logger zerolog.Logger) *AlertHandlers {
	return &AlertHandlers{
		streamer: streamer,
		logger:   logger,
	}
}

// Stream returns a handler that upgrades the connection to a WebSocket
// and streams bottleneck alerts until the client disconnects
func (h *AlertHandlers) Stream() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.streamer.Subscribe(c.Writer, c.Request); err != nil {
			// The upgrader has already written the handshake failure
			h.logger.Warn().Err(err).Str("request_id", c.GetString("request_id")).
				Msg("websocket upgrade failed")
			c.Abort()
			return
		}
	}
}

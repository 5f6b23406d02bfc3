package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub fans out JSON messages to every connected WebSocket subscriber.
// Slow subscribers are dropped rather than allowed to block the rest.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// Connection options
	pingInterval time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
	sendBuffer   int

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// HubOption configures hub behavior
type HubOption func(*Hub)

// WithPingInterval sets the ping interval
func WithPingInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		h.pingInterval = interval
	}
}

// WithWriteTimeout sets the write timeout
func WithWriteTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) {
		h.writeTimeout = timeout
	}
}

// WithReadTimeout sets the read timeout
func WithReadTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) {
		h.readTimeout = timeout
	}
}

// WithSendBuffer sets the per-subscriber outbound queue length
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		h.sendBuffer = n
	}
}

// WithLogger sets the hub logger
func WithLogger(logger zerolog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a new broadcast hub
func NewHub(opts ...HubOption) *Hub {
	hub := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       zerolog.Nop(),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		readTimeout:  60 * time.Second,
		sendBuffer:   16,
		clients:      make(map[*client]struct{}),
		broadcast:    make(chan []byte, 64),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(hub)
	}

	return hub
}

// Run delivers broadcasts until the context is cancelled or the hub is
// closed. It is meant to run in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return
		}
	}
}

// Publish marshals v and queues it for every subscriber. Publishing on a
// closed or saturated hub drops the message.
func (h *Hub) Publish(v interface{}) {
	encoded, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode broadcast message")
		return
	}

	select {
	case h.broadcast <- encoded:
	case <-h.done:
	default:
		h.logger.Warn().Msg("broadcast queue full, dropping message")
	}
}

// Subscribe upgrades the request to a WebSocket connection and registers
// it with the hub. It returns once the upgrade handshake is done; pumps
// run in their own goroutines.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Debug().
		Str("remote", conn.RemoteAddr().String()).
		Int("subscribers", count).
		Msg("websocket subscriber connected")

	go c.writePump()
	go c.readPump()
	return nil
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and stops delivery
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.clientsMu.Lock()
		for c := range h.clients {
			c.close()
		}
		h.clients = make(map[*client]struct{})
		h.clientsMu.Unlock()
	})
}

func (h *Hub) deliver(msg []byte) {
	h.clientsMu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// Subscriber cannot keep up
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()

	if ok {
		c.close()
		h.logger.Debug().Msg("websocket subscriber removed")
	}
}

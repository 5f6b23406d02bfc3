package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.Subscribe(w, r); err != nil {
			t.Logf("subscribe failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.Publish(map[string]interface{}{"type": "api_slow_response", "duration_ms": 2500})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &decoded))
	assert.Equal(t, "api_slow_response", decoded["type"])
	assert.Equal(t, 2500.0, decoded["duration_ms"])
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, url := newTestServer(t, hub)
	first := dial(t, url)
	second := dial(t, url)
	waitForClients(t, hub, 2)

	hub.Publish(map[string]string{"type": "memory_usage_high"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), "memory_usage_high")
	}
}

func TestHub_SubscriberDisconnectIsDetected(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, url := newTestServer(t, hub)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.Close()

	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_PublishAfterCloseDoesNotPanic(t *testing.T) {
	hub := NewHub()
	hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish(map[string]string{"type": "interaction_delay"})
	})
}

func TestHub_PublishUnencodableValueIsDropped(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish(make(chan int))
	})
}

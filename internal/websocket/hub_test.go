package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub, deviceID string) *gorilla.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "user-1", deviceID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Connected(deviceID) }, time.Second, 5*time.Millisecond)
	return conn
}

func TestSendToDevice(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, hub, "dev-1")
	other := dial(t, hub, "dev-2")

	assert.True(t, hub.SendToDevice("dev-1", map[string]string{"type": "print_job", "jobId": "j1"}))
	assert.False(t, hub.SendToDevice("dev-404", map[string]string{"type": "x"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "j1", msg["jobId"])

	assert.Equal(t, 2, hub.Broadcast(map[string]string{"type": "ping"}))
	other.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err = other.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "ping")
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, hub, "dev-1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return !hub.Connected("dev-1") }, 2*time.Second, 10*time.Millisecond)
}

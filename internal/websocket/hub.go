package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/logger"
)

// Hub tracks one connection per device and pushes notifications to them
type Hub struct {
	// Registered clients map: DeviceID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        logger.Component("websocket"),
	}
}

// Run processes registrations until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// A reconnecting device replaces its previous connection
			if old, ok := h.clients[client.DeviceID]; ok {
				close(old.send)
			}
			h.clients[client.DeviceID] = client
			h.mu.Unlock()
			h.log.Info().Str("device_id", client.DeviceID).Str("actor", client.ActorID).Msg("📱 Device connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.DeviceID]; ok && current == client {
				delete(h.clients, client.DeviceID)
				close(client.send)
				h.log.Info().Str("device_id", client.DeviceID).Msg("📴 Device disconnected")
			}
			h.mu.Unlock()
		}
	}
}

// Connected reports whether a device currently has a connection
func (h *Hub) Connected(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[deviceID]
	return ok
}

// SendToDevice sends a message to a specific device
func (h *Hub) SendToDevice(deviceID string, message interface{}) bool {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[deviceID]
	if !ok {
		return false
	}

	select {
	case client.send <- jsonMsg:
		return true
	default:
		// Buffer full or client dead
		return false
	}
}

// Broadcast sends a message to every connected device
func (h *Hub) Broadcast(message interface{}) int {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal broadcast")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		select {
		case client.send <- jsonMsg:
			sent++
		default:
		}
	}
	return sent
}

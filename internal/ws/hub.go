package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
)

// Hub maintains active WebSocket connections keyed by connection id and
// delivers outbound events to them.
type Hub struct {
	// Registered clients by connection ID
	clients map[string]*Client

	// Lock for thread-safe access
	mu sync.RWMutex

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes register and unregister requests until ctx is cancelled,
// then closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("[HUB] Starting hub event loop")
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("[HUB] Hub event loop stopped")
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands client to the event loop. It reports false when the hub
// has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client from the hub. Safe to call after the hub has
// stopped or for a client that was already dropped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[client.id]; ok && old != client {
		h.logger.Warn("[HUB] Replacing client with duplicate connection id", "connection", client.id)
		close(old.send)
	}
	h.clients[client.id] = client

	h.logger.Debug("[HUB] Client registered", "connection", client.id, "clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)
}

// removeLocked drops client if it is still the registered owner of its id.
// The send channel is closed exactly once, here.
func (h *Hub) removeLocked(client *Client) bool {
	current, ok := h.clients[client.id]
	if !ok || current != client {
		return false
	}
	delete(h.clients, client.id)
	close(client.send)

	h.logger.Debug("[HUB] Client unregistered", "connection", client.id, "clients", len(h.clients))
	return true
}

// Deliver encodes event once and queues it for each listed connection.
// Unknown ids are skipped. A client whose send buffer is full is
// disconnected; the others are unaffected.
func (h *Hub) Deliver(event models.Event, connectionIDs ...string) {
	if len(connectionIDs) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("[HUB] Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	var slow []*Client

	h.mu.RLock()
	for _, id := range connectionIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range slow {
		if h.removeLocked(client) {
			h.logger.Warn("[HUB] Client buffer full, disconnecting", "connection", client.id, "type", event.Type)
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	h.logger.Info("[HUB] Closed all client connections")
}

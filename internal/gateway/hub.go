package gateway

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks connected websocket clients and fans events out to them.
// Sends are non-blocking: a client that cannot drain its buffer loses
// frames rather than stalling the rest.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("client_id", c.id), zap.Int("total", n))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", zap.String("client_id", c.id), zap.Int("total", n))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, data any) {
	h.broadcastExcept("", event, data)
}

// BroadcastExcept sends an event to every client but the named one.
// Used for call signaling, where the originator already has the payload.
func (h *Hub) BroadcastExcept(excludeID string, event string, data any) {
	h.broadcastExcept(excludeID, event, data)
}

func (h *Hub) broadcastExcept(excludeID string, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == excludeID {
			continue
		}
		c.enqueue(frame, h.logger)
	}
}

// SendTo sends an event to a single client. Unknown ids are ignored;
// the client may have disconnected between command and reply.
func (h *Hub) SendTo(clientID string, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("send encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(frame, h.logger)
}

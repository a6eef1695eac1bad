package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event types delivered over the hub. Agents key their behavior off Type:
// push_dispatched is rendered as a local notification, scan_summary updates
// the in-app badges, outbox_synced refreshes the client list.
const (
	TypePushDispatched = "push_dispatched"
	TypeScanSummary    = "scan_summary"
	TypeOutboxSynced   = "outbox_synced"
)

// Message is a real-time event for one reseller account. Delivery is scoped
// to that account's connections; events never cross accounts.
type Message struct {
	Type   string         `json:"type"`
	UserID int64          `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
}

// PushDispatched announces a completed push dispatch. payload is the JSON
// notification body, so agents can render it without a push subscription of
// their own.
func PushDispatched(userID int64, payload string, sent, failed int) Message {
	return Message{
		Type:   TypePushDispatched,
		UserID: userID,
		Data: map[string]any{
			"payload": payload,
			"sent":    sent,
			"failed":  failed,
		},
	}
}

// ScanSummary carries per-tier counts from one scanner pass, including
// passes where notifications were suppressed.
func ScanSummary(userID int64, scanner string, tiers map[string]int) Message {
	data := make(map[string]any, len(tiers)+1)
	data["scanner"] = scanner
	for tier, n := range tiers {
		data[tier] = n
	}
	return Message{Type: TypeScanSummary, UserID: userID, Data: data}
}

// OutboxSynced announces that a queued item landed on the server.
func OutboxSynced(userID int64, queue string, clientID int64) Message {
	return Message{
		Type:   TypeOutboxSynced,
		UserID: userID,
		Data: map[string]any{
			"queue":     queue,
			"client_id": clientID,
		},
	}
}

// Hub maintains the active connections (panel tabs and desktop agents) and
// routes each event to the owning account's connections only.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a connection from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast delivers the event to every connection of the account named by
// msg.UserID. A connection with a full buffer loses the event; the agent
// re-fetches state on reconnect, so dropping beats blocking the sweep.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID != msg.UserID {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

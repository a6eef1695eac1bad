package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunovales/painelzap/internal/auth"
	"github.com/brunovales/painelzap/internal/model"
	"github.com/brunovales/painelzap/internal/store"
	"github.com/brunovales/painelzap/internal/websocket"
)

// SyncHandler receives the agent's outbox items. Both writes tolerate a
// retry after a lost acknowledgement: the message insert carries the queued
// id for audit, the renewal recomputes from the stored expiration.
type SyncHandler struct {
	messageStore *store.MessageStore
	clientStore  *store.ClientStore
	hub          *websocket.Hub
	logger       *slog.Logger
	now          func() time.Time
}

func NewSyncHandler(ms *store.MessageStore, cs *store.ClientStore, hub *websocket.Hub, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		messageStore: ms,
		clientStore:  cs,
		hub:          hub,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateMessage handles POST /api/messages.
func (h *SyncHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var msg model.QueuedMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg.ClientID == 0 || msg.MessageContent == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_id and message_content are required"})
		return
	}
	if msg.Platform == "" {
		msg.Platform = model.PlatformWhatsApp
	}
	if msg.Platform != model.PlatformWhatsApp && msg.Platform != model.PlatformTelegram {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform must be whatsapp or telegram"})
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = h.now()
	}

	if err := h.messageStore.RecordSent(userID, msg); err != nil {
		h.logger.Error("record message", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record message"})
		return
	}

	h.hub.Broadcast(websocket.OutboxSynced(userID, "messages", msg.ClientID))
	writeJSON(w, http.StatusCreated, map[string]string{"id": msg.ID})
}

// CreateRenewal handles POST /api/renewals.
func (h *SyncHandler) CreateRenewal(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var renewal model.QueuedRenewal
	if err := json.NewDecoder(r.Body).Decode(&renewal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if renewal.ClientID == 0 || renewal.NewExpirationDate.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_id and new_expiration_date are required"})
		return
	}

	client, err := h.clientStore.GetByID(renewal.ClientID, userID)
	if err != nil {
		h.logger.Error("get client", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to apply renewal"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
		return
	}

	newExp, err := h.clientStore.ApplyRenewal(userID, renewal, h.now())
	if err != nil {
		h.logger.Error("apply renewal", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to apply renewal"})
		return
	}

	h.hub.Broadcast(websocket.OutboxSynced(userID, "renewals", renewal.ClientID))
	writeJSON(w, http.StatusOK, map[string]string{
		"id":              renewal.ID,
		"expiration_date": newExp.Format("2006-01-02"),
	})
}

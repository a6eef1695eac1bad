package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brunovales/painelzap/internal/auth"
	"github.com/brunovales/painelzap/internal/push"
	"github.com/brunovales/painelzap/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
	Action string `json:"action"`
}

// Subscribe handles POST /api/push/subscribe for both subscribe and
// unsubscribe actions. Subscribing twice with the same endpoint refreshes the
// stored keys; unsubscribing an unknown endpoint succeeds.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Subscription.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint is required"})
		return
	}

	switch req.Action {
	case "unsubscribe":
		if err := h.pushStore.DeleteByUserAndEndpoint(userID, req.Subscription.Endpoint); err != nil {
			h.logger.Error("delete push subscription", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "subscribe", "":
		if req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint, p256dh, and auth are required"})
			return
		}
		sub, err := h.pushStore.Upsert(userID, req.Subscription.Endpoint, req.Subscription.Keys.P256dh, req.Subscription.Keys.Auth)
		if err != nil {
			h.logger.Error("save push subscription", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
			return
		}
		writeJSON(w, http.StatusCreated, sub)

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
	}
}

// ListSubscriptions handles GET /api/push/subscriptions.
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key.
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test: a dispatch to the caller's
// own devices so a reseller can verify the setup end to end.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	payload := push.Payload{
		Title: "Notificações ativadas",
		Body:  "O PainelZap vai avisar sobre vencimentos por aqui.",
		Tag:   "test",
		URL:   "/configuracoes",
	}

	result, err := h.service.Dispatch(r.Context(), userID, payload)
	if err != nil {
		h.logger.Error("test push dispatch", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "dispatch failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

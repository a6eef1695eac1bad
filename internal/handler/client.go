package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brunovales/painelzap/internal/auth"
	"github.com/brunovales/painelzap/internal/store"
)

type ClientHandler struct {
	clientStore *store.ClientStore
	logger      *slog.Logger
}

func NewClientHandler(cs *store.ClientStore, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{clientStore: cs, logger: logger}
}

// List handles GET /api/clients.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientStore.List(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list clients", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list clients"})
		return
	}
	if clients == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// Get handles GET /api/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	client, err := h.clientStore.GetByID(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get client", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// ListExpiring handles GET /api/clients/expiring?days=N.
func (h *ClientHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	from, to, ok := expiringWindow(w, r)
	if !ok {
		return
	}
	clients, err := h.clientStore.ListExpiring(auth.UserID(r.Context()), from, to)
	if err != nil {
		h.logger.Error("list expiring clients", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list expiring clients"})
		return
	}
	if clients == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// ListExpiringApps handles GET /api/client-apps/expiring?days=N.
func (h *ClientHandler) ListExpiringApps(w http.ResponseWriter, r *http.Request) {
	from, to, ok := expiringWindow(w, r)
	if !ok {
		return
	}
	links, err := h.clientStore.ListExpiringApps(auth.UserID(r.Context()), from, to)
	if err != nil {
		h.logger.Error("list expiring apps", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list expiring apps"})
		return
	}
	if links == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func expiringWindow(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 365 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be 0-365"})
			return time.Time{}, time.Time{}, false
		}
		days = n
	}
	now := time.Now().UTC()
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, days), true
}

type createClientRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	PlanName       string `json:"plan_name"`
	ExpirationDate string `json:"expiration_date"` // YYYY-MM-DD
}

// Create handles POST /api/clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	expiration, err := time.ParseInLocation("2006-01-02", req.ExpirationDate, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expiration_date must be YYYY-MM-DD"})
		return
	}

	client, err := h.clientStore.Create(auth.UserID(r.Context()), req.Name, req.Phone, req.PlanName, expiration)
	if err != nil {
		h.logger.Error("create client", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create client"})
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

type linkAppRequest struct {
	AppName        string `json:"app_name"`
	DeviceOrEmail  string `json:"device_or_email"`
	ExpirationDate string `json:"expiration_date"` // YYYY-MM-DD
}

// LinkApp handles POST /api/clients/{id}/apps: registers the app by name if
// needed and attaches the credential to the client.
func (h *ClientHandler) LinkApp(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	clientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	client, err := h.clientStore.GetByID(clientID, userID)
	if err != nil {
		h.logger.Error("get client", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
		return
	}

	var req linkAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.AppName = strings.TrimSpace(req.AppName)
	if req.AppName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "app_name is required"})
		return
	}
	expiration, err := time.ParseInLocation("2006-01-02", req.ExpirationDate, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expiration_date must be YYYY-MM-DD"})
		return
	}

	app, err := h.clientStore.CreateApp(req.AppName)
	if err != nil {
		h.logger.Error("create external app", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register app"})
		return
	}
	linkID, err := h.clientStore.LinkApp(clientID, app.ID, req.DeviceOrEmail, expiration)
	if err != nil {
		h.logger.Error("link client app", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to link app"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": linkID, "app_id": app.ID})
}

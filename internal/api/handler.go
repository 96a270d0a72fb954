// Package api exposes the HTTP surface: history queries, the online roster,
// health and the WebSocket route.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/nzuziariete/Chat-Aribeth/internal/models"
	"github.com/nzuziariete/Chat-Aribeth/internal/store"
)

const pingTimeout = 2 * time.Second

// Roster lists the identified participants.
type Roster interface {
	Participants() []models.Participant
}

// ConnectionCounter reports open transport connections.
type ConnectionCounter interface {
	ClientCount() int
}

// StatsProvider reports persistence counters.
type StatsProvider interface {
	Stats() store.Stats
}

// Handler holds application dependencies
type Handler struct {
	Store        store.Store
	Roster       Roster
	Connections  ConnectionCounter
	Persistence  StatsProvider
	WebSocket    http.Handler
	HistoryLimit int
	Logger       *slog.Logger
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	h.HistoryLimit = store.NormalizeLimit(h.HistoryLimit)

	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/api/messages/general", h.GeneralMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/private/{connectionId}", h.PrivateMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/online-users", h.OnlineUsers).Methods(http.MethodGet)

	if h.WebSocket != nil {
		r.Handle("/ws", h.WebSocket).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
	return r
}

// GeneralMessages handles GET /api/messages/general
func (h *Handler) GeneralMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	msgs, err := h.Store.GeneralHistory(r.Context(), limit)
	if err != nil {
		h.Logger.Error("[API] Failed to load general history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// PrivateMessages handles GET /api/messages/private/{connectionId}
func (h *Handler) PrivateMessages(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	msgs, err := h.Store.DirectHistory(r.Context(), connectionID, limit)
	if err != nil {
		h.Logger.Error("[API] Failed to load private history", "connection", connectionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// OnlineUsers handles GET /api/online-users
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Roster.Participants())
}

type healthResponse struct {
	Status           string       `json:"status"`
	ConnectedClients int          `json:"connectedClients"`
	Participants     int          `json:"participants"`
	Persistence      *store.Stats `json:"persistence,omitempty"`
	Error            string       `json:"error,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Participants: len(h.Roster.Participants()),
	}
	if h.Connections != nil {
		resp.ConnectedClients = h.Connections.ClientCount()
	}
	if h.Persistence != nil {
		stats := h.Persistence.Stats()
		resp.Persistence = &stats
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	status := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("[API] Store ping failed", "error", err)
		resp.Status = "degraded"
		resp.Error = "store unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// NotFound answers unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Logger.Debug("[API] Route not found", "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusNotFound, "route not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// limit reads ?limit=k, capped at the configured history size.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.HistoryLimit, true
	}

	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if k > h.HistoryLimit {
		k = h.HistoryLimit
	}
	return k, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

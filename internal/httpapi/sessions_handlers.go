package httpapi

import (
	"net/http"
	"strconv"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/store"
)

type SessionsHandler struct {
	DB  *store.DB
	Hub *events.Hub
}

func (h SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.DB.ListSessions(r.Context(), limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, sessions)
}

// Logs returns the most recent per-company log rows across all sessions.
func (h SessionsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.DB.ListScrapingLogs(r.Context(), limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if logs == nil {
		logs = []domain.ScrapingLog{}
	}
	writeJSON(w, logs)
}

// ByPath dispatches /sessions/{id} and /sessions/{id}/stop.
func (h SessionsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	id, tail := pathTail(r.URL.Path, "/sessions/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "invalid session id")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case tail == "stop" && r.Method == http.MethodPost:
		h.stop(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h SessionsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	session, err := h.DB.GetSession(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if session == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "session not found")
		return
	}

	logs, err := h.DB.GetSessionLogs(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if logs == nil {
		logs = []domain.ScrapingLog{}
	}

	writeJSON(w, map[string]any{
		"session": session,
		"logs":    logs,
	})
}

// stop flips an in-progress session to stopped. Workers notice at their next
// task pickup; the company being scraped right now still finishes.
func (h SessionsHandler) stop(w http.ResponseWriter, r *http.Request, id string) {
	stopped, err := h.DB.StopSession(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if stopped {
		h.Hub.Publish("session.stopped", map[string]any{"id": id})
	}
	writeJSON(w, map[string]any{"ok": true, "stopped": stopped})
}

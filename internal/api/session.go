package api

import (
	"errors"
	"net/http"

	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/session"
)

// SessionHandler handles session management endpoints.
type SessionHandler struct {
	store  *session.Store
	logger log.Logger
}

// NewSessionHandler creates a session handler over the registry.
func NewSessionHandler(store *session.Store, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
// The literal /api/chat/history route takes precedence over the
// /api/chat/{id} pattern.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/new", h.create)
	mux.HandleFunc("GET /api/chat/history", h.history)
	mux.HandleFunc("GET /api/chat/{id}", h.get)
	mux.HandleFunc("DELETE /api/chat/{id}", h.delete)
}

// create starts an empty session.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	id := h.store.Create()
	writeJSON(w, http.StatusOK, map[string]string{
		"chat_id": id,
		"message": "New chat created",
	})
}

// history lists all sessions, most recently updated first.
func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"chats": h.store.List(),
	})
}

// get returns one session with its full message history.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Chat not found")
			return
		}
		h.logger.Error("failed to load session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load chat")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// delete removes a session.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Chat not found")
			return
		}
		h.logger.Error("failed to delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
}

package api

import (
	"context"
	"net/http"

	"github.com/leadscope/crmchat/internal/session"
)

// DocumentCounter reports the size of the vector index. Implemented by the
// retrieval store; may be nil when no index is wired.
type DocumentCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HealthHandler handles the health probe endpoint.
type HealthHandler struct {
	store   *session.Store
	counter DocumentCounter
	version string
}

// NewHealthHandler creates a health handler. store provides the active
// session count; counter, when non-nil, adds the indexed document count.
func NewHealthHandler(store *session.Store, counter DocumentCounter, version string) *HealthHandler {
	return &HealthHandler{store: store, counter: counter, version: version}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.health)
}

// HealthResponse is the health probe body. Documents is best-effort and
// omitted when the index is unreachable.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	ActiveChats int    `json:"active_chats"`
	Documents   *int64 `json:"documents,omitempty"`
}

func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		ActiveChats: h.store.Count(),
	}
	if h.counter != nil {
		if n, err := h.counter.Count(r.Context()); err == nil {
			resp.Documents = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

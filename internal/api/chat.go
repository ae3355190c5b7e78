package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/leadscope/crmchat/internal/chat"
	"github.com/leadscope/crmchat/internal/log"
)

// ChatService runs the question pipeline. Implemented by chat.Orchestrator.
type ChatService interface {
	Ask(ctx context.Context, sessionID, message string) (chat.Answer, error)
	Stream(ctx context.Context, sessionID, message string) (<-chan chat.Event, error)
}

// ChatHandler handles the question endpoints.
//
// Endpoints:
//   - POST /api/chat        - blocking question (JSON request/response)
//   - POST /api/chat/stream - streaming question (Server-Sent Events)
type ChatHandler struct {
	service ChatService
	logger  log.Logger
}

// NewChatHandler creates a chat handler over the pipeline service.
func NewChatHandler(service ChatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleAsk)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// ChatRequest is the question request body. ChatID is optional: empty or
// unknown IDs start a fresh session.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ChatResponse is the blocking answer body.
type ChatResponse struct {
	Response  string    `json:"response"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// handleAsk answers a question in one blocking round trip.
func (h *ChatHandler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	answer, err := h.service.Ask(r.Context(), req.ChatID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
			return
		}
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  answer.Text,
		ChatID:    answer.SessionID,
		Timestamp: answer.Timestamp,
	})
}

// handleStream answers a question as a Server-Sent Events stream. Events are
// framed as "event: <type>" lines carrying the pipeline event as JSON data.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	ctx := r.Context()
	stream, err := h.service.Stream(ctx, req.ChatID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
			return
		}
		h.logger.Error("stream request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for ev := range stream {
		select {
		case <-ctx.Done():
			h.logger.Debug("client disconnected mid-stream")
			return
		default:
		}
		h.writeSSEEvent(w, flusher, ev)
	}
}

// writeSSEEvent writes one pipeline event as an SSE frame.
func (h *ChatHandler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev chat.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	flusher.Flush()
}

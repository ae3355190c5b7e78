package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadscope/crmchat/internal/llm"
	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/retrieval"
	"github.com/leadscope/crmchat/internal/session"
)

// ErrEmptyMessage indicates a question with no content. It is rejected
// before any session state is touched.
var ErrEmptyMessage = errors.New("message must not be empty")

// Retriever finds records relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Record, error)
}

// Completer generates answer text from a prompt, either in one shot or as an
// incremental stream.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteStream(ctx context.Context, prompt string) (<-chan llm.Chunk, error)
}

// Answer is the result of a blocking question.
type Answer struct {
	SessionID string
	Text      string
	Timestamp time.Time
}

// EventType discriminates streamed events.
type EventType string

// Stream event types, in emission order: start opens the stream, chunk
// carries answer increments, done or error closes it.
const (
	EventStart EventType = "start"
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one streamed pipeline event.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"chat_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// eventBuffer bounds how far the pipeline can run ahead of a slow consumer.
const eventBuffer = 32

// Orchestrator runs the question pipeline against a session store, a
// retriever, and a completion client.
//
// Pipeline guarantees, failures included:
//   - the user message is committed as soon as the session is resolved
//   - exactly one assistant message is committed per accepted question
//   - collaborator failures never surface raw; they become a committed
//     assistant message in user-facing language
type Orchestrator struct {
	sessions  *session.Store
	retriever Retriever
	completer Completer
	mode      Mode
	logger    log.Logger
}

// NewOrchestrator wires the pipeline. logger may be nil.
func NewOrchestrator(sessions *session.Store, retriever Retriever, completer Completer, mode Mode, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		sessions:  sessions,
		retriever: retriever,
		completer: completer,
		mode:      mode,
		logger:    logger,
	}
}

// Mode returns the deployment mode the pipeline runs in.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// Ask runs the blocking pipeline: resolve the session, retrieve, compose,
// generate, commit. An empty or unknown session ID resolves to a fresh
// session. Collaborator failures are converted into the committed answer
// text, so a non-nil error only means the question itself was rejected.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, message string) (Answer, error) {
	if strings.TrimSpace(message) == "" {
		return Answer{}, ErrEmptyMessage
	}

	sessionID, err := o.resolveSession(sessionID, message)
	if err != nil {
		return Answer{}, err
	}

	text := o.generate(ctx, message)
	o.commit(sessionID, text)

	return Answer{SessionID: sessionID, Text: text, Timestamp: time.Now()}, nil
}

// generate runs retrieve-compose-complete and returns the answer text,
// substituting user-facing failure text when a collaborator fails.
func (o *Orchestrator) generate(ctx context.Context, message string) string {
	records, err := o.retriever.Search(ctx, message, o.mode.TopK)
	if err != nil {
		o.logger.Error("retrieval failed", "error", err)
		return failureText(err)
	}

	prompt := ComposePrompt(message, records, o.mode)
	text, err := o.completer.Complete(ctx, prompt)
	if err != nil {
		o.logger.Error("generation failed", "error", err)
		return failureText(err)
	}
	return text
}

// Stream runs the pipeline with incremental delivery. The returned channel
// emits a start event, zero or more chunks, and exactly one terminal event,
// either done or error, then closes. The concatenation of chunk contents
// equals the committed assistant text; if the consumer disconnects
// mid-stream, the chunks delivered so far are committed as the answer.
func (o *Orchestrator) Stream(ctx context.Context, sessionID, message string) (<-chan Event, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	sessionID, err := o.resolveSession(sessionID, message)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, eventBuffer)
	go o.streamPipeline(ctx, out, sessionID, message)
	return out, nil
}

func (o *Orchestrator) streamPipeline(ctx context.Context, out chan<- Event, sessionID, message string) {
	defer close(out)

	if !o.emit(ctx, out, Event{Type: EventStart, SessionID: sessionID}) {
		o.commit(sessionID, failureText(ctx.Err()))
		return
	}

	records, err := o.retriever.Search(ctx, message, o.mode.TopK)
	if err != nil {
		o.logger.Error("retrieval failed", "session_id", sessionID, "error", err)
		o.fail(ctx, out, sessionID, failureText(err))
		return
	}

	if len(records) == 0 && o.mode.ShortCircuitEmpty {
		o.commit(sessionID, NoDataMessage)
		if o.emit(ctx, out, Event{Type: EventChunk, Content: NoDataMessage}) {
			o.emit(ctx, out, Event{Type: EventDone, SessionID: sessionID})
		}
		return
	}

	prompt := ComposePrompt(message, records, o.mode)
	stream, err := o.completer.CompleteStream(ctx, prompt)
	if err != nil {
		o.logger.Error("generation failed", "session_id", sessionID, "error", err)
		o.fail(ctx, out, sessionID, failureText(err))
		return
	}

	var buf strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			o.finishFailedStream(ctx, out, sessionID, buf.String(), chunk.Err)
			return
		}
		if !o.emit(ctx, out, Event{Type: EventChunk, Content: chunk.Content}) {
			// Consumer gone: keep what was delivered.
			o.commit(sessionID, buf.String())
			return
		}
		buf.WriteString(chunk.Content)
	}

	o.commit(sessionID, buf.String())
	o.emit(ctx, out, Event{Type: EventDone, SessionID: sessionID})
}

// finishFailedStream commits the partial answer (or failure text when
// nothing was delivered) after a mid-stream error.
func (o *Orchestrator) finishFailedStream(ctx context.Context, out chan<- Event, sessionID, partial string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.logger.Debug("stream cancelled", "session_id", sessionID, "delivered", len(partial))
		if partial != "" {
			o.commit(sessionID, partial)
		} else {
			o.commit(sessionID, failureText(err))
		}
		return
	}

	o.logger.Error("stream failed", "session_id", sessionID, "error", err)
	if partial != "" {
		o.commit(sessionID, partial)
	} else {
		o.commit(sessionID, failureText(err))
	}
	o.emit(ctx, out, Event{Type: EventError, Error: failureText(err)})
}

// fail commits failure text as the assistant answer and ends the stream with
// a terminal error event.
func (o *Orchestrator) fail(ctx context.Context, out chan<- Event, sessionID, text string) {
	o.commit(sessionID, text)
	o.emit(ctx, out, Event{Type: EventError, Error: text})
}

// resolveSession maps an empty or unknown session ID to a fresh session and
// commits the user message.
func (o *Orchestrator) resolveSession(sessionID, message string) (string, error) {
	if sessionID == "" || !o.sessions.Has(sessionID) {
		sessionID = o.sessions.Create()
	}
	if err := o.sessions.Append(sessionID, session.RoleUser, message); err != nil {
		return "", fmt.Errorf("commit user message: %w", err)
	}
	return sessionID, nil
}

// commit appends the assistant answer to the session. A failed commit is
// logged rather than propagated: the session may have been deleted while
// the pipeline was running.
func (o *Orchestrator) commit(sessionID, text string) {
	if err := o.sessions.Append(sessionID, session.RoleAssistant, text); err != nil {
		o.logger.Warn("dropping assistant message", "session_id", sessionID, "error", err)
	}
}

// emit sends ev unless the consumer's context is already done.
func (o *Orchestrator) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// failureText phrases a collaborator failure for the end user.
func failureText(err error) string {
	var reason string
	switch {
	case errors.Is(err, retrieval.ErrEmbedding):
		reason = "I couldn't process your question"
	case errors.Is(err, retrieval.ErrRetrieval):
		reason = "I couldn't search the lead data"
	case errors.Is(err, llm.ErrGeneration):
		reason = "the answer could not be generated"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "the request was interrupted"
	default:
		reason = "something went wrong"
	}
	return fmt.Sprintf("I encountered an error: %s. Please try again or rephrase your question.", reason)
}

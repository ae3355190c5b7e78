package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadscope/crmchat/internal/log"
)

// Store is the in-memory session registry.
//
// Store is safe for concurrent use by multiple goroutines. Appends to a
// session are atomic: no caller can observe a partially-appended message,
// and message order within a session matches append arrival order at the
// store boundary.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   log.Logger
	now      func() time.Time
}

// New creates an empty Store. logger may be nil.
func New(logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// Create allocates a fresh session with a default title and returns its ID.
// IDs are UUIDv4 and unique for the lifetime of the process.
func (s *Store) Create() string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	s.sessions[id] = &Session{
		ID:        id,
		Title:     DefaultTitle,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Unlock()

	s.logger.Debug("created session", "id", id)
	return id
}

// Append adds an immutable message to the session and refreshes updated_at.
// The first message appended to a session also derives its title.
// Returns ErrSessionNotFound if id is unknown; nothing is mutated on error.
func (s *Store) Append(id, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	now := s.now()
	if len(sess.Messages) == 0 {
		sess.Title = truncateTitle(content)
	}
	sess.Messages = append(sess.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	sess.UpdatedAt = now

	s.logger.Debug("appended message", "session_id", id, "role", role, "count", len(sess.Messages))
	return nil
}

// Get returns a snapshot of the session, including all messages. The copy
// is independent of the registry: mutating it does not affect stored state.
// Returns ErrSessionNotFound if id is unknown.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	snapshot := &Session{
		ID:        sess.ID,
		Title:     sess.Title,
		Messages:  make([]Message, len(sess.Messages)),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	copy(snapshot.Messages, sess.Messages)
	return snapshot, nil
}

// Has reports whether a session with the given ID exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// List returns summaries for all sessions, most recently updated first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, Summary{
			ID:           sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: len(sess.Messages),
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// Delete removes a session permanently.
// Returns ErrSessionNotFound if id is unknown.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// truncateTitle derives a session title from its first message.
// Max 50 runes, truncated at a word boundary where possible.
func truncateTitle(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return DefaultTitle
	}

	runes := []rune(message)
	if len(runes) <= TitleMaxLength {
		return message
	}

	truncated := string(runes[:TitleMaxLength])
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > TitleMaxLength/2 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated) + "..."
}

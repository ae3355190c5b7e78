// Package session provides the in-memory chat session registry.
//
// Sessions hold ordered, append-only conversation history and live for the
// lifetime of the process; there is no automatic expiry. All mutation goes
// through Store, which serializes appends per registry and hands out
// snapshots rather than live references.
package session

import "time"

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TitleMaxLength is the maximum rune length for a derived session title.
const TitleMaxLength = 50

// DefaultTitle is the title assigned at creation, before the first message
// arrives and a real title can be derived from it.
const DefaultTitle = "New Chat"

// Message is a single conversation turn. Messages are immutable once stored.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation session with its full message history.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary describes a session without its message bodies, for history
// listings.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

package store

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Message roles. A system entry is synthesized per turn and never persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a persistent conversation container owning an ordered sequence
// of messages.
type Session struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"-"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens"`
	IsArchived   bool      `json:"is_archived"`
	IsPinned     bool      `json:"is_pinned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted conversation entry.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is one accounting record for a completed turn.
type Usage struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	SessionID  string    `json:"session_id"`
	TokensUsed int       `json:"tokens_used"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}

// Package session provides conversation persistence for the assistant.
//
// Responsibilities: store per-conversation message history in PostgreSQL
// and guarantee append-order integrity under concurrent turns. Message
// content is the Genkit ai.Part slice serialized as JSONB, so tool-call
// requests and observations are persisted alongside plain text in exact
// append order.
package session

import (
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleTool   = "tool"
	RoleSystem = "system"
)

// Sentinel errors for session operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrNilContent indicates a message carried a nil content part.
	ErrNilContent = errors.New("message has nil content part")
)

// Conversation is a persisted chat thread (application-level type).
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single conversation entry (application-level type).
// Content stores Genkit's ai.Part slice, serialized as JSONB in the database.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        []*ai.Part `json:"content"`
	SequenceNumber int        `json:"sequence_number"`
	CreatedAt      time.Time  `json:"created_at"`
}

// History converts stored messages to the Genkit message slice consumed
// by the reasoning call, preserving order.
func History(messages []*Message) []*ai.Message {
	out := make([]*ai.Message, len(messages))
	for i, m := range messages {
		out[i] = &ai.Message{
			Role:    ai.Role(m.Role),
			Content: m.Content,
		}
	}
	return out
}

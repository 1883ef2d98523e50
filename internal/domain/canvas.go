package domain

import "time"

const (
	DefaultCanvasLanguage = "javascript"
	DefaultCanvasTitle    = "Code Canvas"
)

// CodeCanvas is the shared, versioned code buffer of a conversation.
type CodeCanvas struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Language       string    `json:"language"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Content        string    `json:"content"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

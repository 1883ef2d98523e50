package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is one entry of a conversation transcript. Messages are immutable.
type Message struct {
	ID              string          `json:"id"`
	ConversationID  string          `json:"conversation_id"`
	Role            MessageRole     `json:"role"`
	Content         string          `json:"content"`
	ParticipantID   string          `json:"participant_id,omitempty"`
	ResponseTimeMs  int64           `json:"response_time_ms,omitempty"`
	ThoughtProcess  string          `json:"thought_process,omitempty"`
	ToolCalls       json.RawMessage `json:"tool_calls,omitempty"`
	ToolName        string          `json:"tool_name,omitempty"`
	ParentMessageID string          `json:"parent_message_id,omitempty"`
	PromptGroupID   string          `json:"prompt_group_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	// Attachments is populated for human messages when files were sent with them.
	Attachments []ChatFile `json:"attachments,omitempty"`
}

// IsSystem reports whether the message is a service notice rather than a participant reply.
func (m *Message) IsSystem() bool {
	return m.Role == MessageRoleAI && strings.HasPrefix(m.Content, SystemMessagePrefix)
}

// ChatFile is a file shared into a conversation, either attached to a message or
// sitting in the conversation's repository.
type ChatFile struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	MessageID        string    `json:"message_id,omitempty"`
	FileName         string    `json:"file_name"`
	FileURL          string    `json:"file_url"`
	FileType         string    `json:"file_type,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	FolderPath       string    `json:"folder_path,omitempty"`
	FileCategory     string    `json:"file_category,omitempty"`
	ExtractedContent string    `json:"extracted_content,omitempty"`
	AnalysisSummary  string    `json:"analysis_summary,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

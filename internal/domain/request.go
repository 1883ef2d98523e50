package domain

import "encoding/json"

// CreateConversationRequest creates a conversation.
type CreateConversationRequest struct {
	Title              string            `json:"title,omitempty"`
	ActiveParticipants []string          `json:"active_participants,omitempty"`
	TurnPolicy         TurnPolicyKind    `json:"turn_policy,omitempty"`
	AgentRoles         map[string]string `json:"agent_roles,omitempty"`
	FolderID           string            `json:"folder_id,omitempty"`
}

// UpdateConversationRequest patches conversation metadata. Nil fields are left unchanged.
type UpdateConversationRequest struct {
	Title              *string           `json:"title,omitempty"`
	Pinned             *bool             `json:"pinned,omitempty"`
	Archived           *bool             `json:"archived,omitempty"`
	FolderID           *string           `json:"folder_id,omitempty"`
	ActiveParticipants []string          `json:"active_participants,omitempty"`
	TurnPolicy         *TurnPolicyKind   `json:"turn_policy,omitempty"`
	AgentRoles         map[string]string `json:"agent_roles,omitempty"`
}

// AttachmentInput is a file sent along with a human message.
type AttachmentInput struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	// Extract asks the service to run content extraction before the turn starts.
	Extract bool `json:"extract,omitempty"`
}

// SendMessageRequest is a human message posted into a conversation.
type SendMessageRequest struct {
	Content     string            `json:"content"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// SendMessageResponse reports the stored message and the loop state after starting.
type SendMessageResponse struct {
	Message   *Message  `json:"message"`
	LoopState LoopState `json:"loop_state"`
}

// AddFileRequest adds a file to a conversation's repository.
type AddFileRequest struct {
	FileName     string `json:"file_name"`
	FileURL      string `json:"file_url"`
	FileType     string `json:"file_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	FolderPath   string `json:"folder_path,omitempty"`
	FileCategory string `json:"file_category,omitempty"`
	Extract      bool   `json:"extract,omitempty"`
}

// SaveCanvasRequest replaces the canvas content. Empty metadata fields keep their current value.
type SaveCanvasRequest struct {
	Content     string `json:"content"`
	Language    string `json:"language,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateMemoryRequest stores one memory for a participant.
type CreateMemoryRequest struct {
	MemoryType      MemoryType `json:"memory_type"`
	Key             string     `json:"key"`
	Content         string     `json:"content"`
	Context         string     `json:"context,omitempty"`
	ImportanceScore float64    `json:"importance_score"`
}

// ImportDocumentRequest extracts memories for a participant from an uploaded document.
type ImportDocumentRequest struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}

// ProposalDecisionRequest approves or denies a role proposal.
type ProposalDecisionRequest struct {
	Decision string `json:"decision"` // approve or deny
}

// ExecuteToolRequest is a direct tool invocation, used to test a configuration.
type ExecuteToolRequest struct {
	ToolConfigID string          `json:"tool_config_id"`
	EndpointPath string          `json:"endpoint_path"`
	Method       string          `json:"method"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// ToolResult is what a tool proxy call produced.
type ToolResult struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

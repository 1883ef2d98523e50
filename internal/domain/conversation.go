package domain

import "time"

// DefaultConversationTitle is the title given to new conversations.
const DefaultConversationTitle = "New Collaboration"

// Conversation is one collaborative chat between a human and a set of participants.
type Conversation struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Archived           bool              `json:"archived"`
	Pinned             bool              `json:"pinned"`
	FolderID           string            `json:"folder_id,omitempty"`
	AgentRoles         map[string]string `json:"agent_roles"`
	ActiveParticipants []string          `json:"active_participants"`
	TurnPolicy         TurnPolicyKind    `json:"turn_policy"`
	LoopState          LoopState         `json:"loop_state"`
	LastActivity       time.Time         `json:"last_activity"`
	CreatedAt          time.Time         `json:"created_at"`
}

// RoleFor returns the assigned role of a participant, or DefaultRole.
func (c *Conversation) RoleFor(participantID string) string {
	if role := c.AgentRoles[participantID]; role != "" {
		return role
	}
	return DefaultRole
}

// HasParticipant reports whether participantID is currently active.
func (c *Conversation) HasParticipant(participantID string) bool {
	for _, id := range c.ActiveParticipants {
		if id == participantID {
			return true
		}
	}
	return false
}

// ConversationSummary is the structured analysis of a finished exchange.
type ConversationSummary struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	ParticipantID   string    `json:"participant_id"`
	Summary         string    `json:"summary"`
	KeyInsights     []string  `json:"key_insights"`
	LearnedFacts    []string  `json:"learned_facts"`
	UserPreferences []string  `json:"user_preferences"`
	FollowUpTopics  []string  `json:"follow_up_topics"`
	CreatedAt       time.Time `json:"created_at"`
}

// Folder groups conversations in the sidebar.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

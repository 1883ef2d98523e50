package domain

import "time"

// RoleProposal is a pending request, raised by a participant, to change a role.
// A human approves or denies it before the conversation's role map changes.
type RoleProposal struct {
	ID              string         `json:"id"`
	ConversationID  string         `json:"conversation_id"`
	ProposerID      string         `json:"proposer_id"`
	ParticipantID   string         `json:"model_id"`
	ParticipantName string         `json:"model_name,omitempty"`
	NewRole         string         `json:"new_role"`
	Justification   string         `json:"justification,omitempty"`
	Status          ProposalStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
}

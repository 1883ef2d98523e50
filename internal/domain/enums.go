// Package domain defines the core domain models for the collaboration service.
package domain

// MessageRole tags who authored a message.
type MessageRole string

const (
	MessageRoleHuman MessageRole = "human"
	MessageRoleAI    MessageRole = "ai"
	MessageRoleTool  MessageRole = "tool"
)

// LoopState is the state of a conversation's multi-turn loop.
type LoopState string

const (
	LoopStateIdle    LoopState = "IDLE"
	LoopStateRunning LoopState = "RUNNING"
	LoopStateYielded LoopState = "YIELDED"
	LoopStateStopped LoopState = "STOPPED"
)

// TurnPolicyKind selects how speakers are scheduled for a conversation.
type TurnPolicyKind string

const (
	// TurnPolicyCyclic rotates through the active participants until one yields.
	TurnPolicyCyclic TurnPolicyKind = "cyclic"
	// TurnPolicyAllOnce lets every active participant speak once per human input.
	TurnPolicyAllOnce TurnPolicyKind = "all_once"
)

// Valid reports whether k is a known policy.
func (k TurnPolicyKind) Valid() bool {
	return k == TurnPolicyCyclic || k == TurnPolicyAllOnce
}

// MemoryType tags a memory record.
type MemoryType string

const (
	MemoryTypeFactual        MemoryType = "factual"
	MemoryTypePreference     MemoryType = "preference"
	MemoryTypeSkill          MemoryType = "skill"
	MemoryTypeConversational MemoryType = "conversational"
)

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryTypeFactual, MemoryTypePreference, MemoryTypeSkill, MemoryTypeConversational:
		return true
	}
	return false
}

// ProposalStatus represents the status of a role change proposal.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "PENDING"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusDenied   ProposalStatus = "DENIED"
	ProposalStatusExpired  ProposalStatus = "EXPIRED"
)

// AuthType is the authentication mode of a tool configuration.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
)

// EventType represents the type of a conversation event pushed to subscribers.
type EventType string

const (
	EventTypeMessageCreated      EventType = "message.created"
	EventTypeSpeakerChanged      EventType = "speaker.changed"
	EventTypeLoopState           EventType = "loop.state"
	EventTypeProposalCreated     EventType = "proposal.created"
	EventTypeProposalDecided     EventType = "proposal.decided"
	EventTypeCanvasUpdated       EventType = "canvas.updated"
	EventTypeConversationUpdated EventType = "conversation.updated"
)

// SystemMessagePrefix marks AI-role messages posted by the service itself.
const SystemMessagePrefix = "System:"

// DefaultRole is used when a participant has no assigned role.
const DefaultRole = "General Assistant"

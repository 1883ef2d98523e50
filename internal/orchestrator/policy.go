package orchestrator

import (
	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// TurnPolicy picks the next speaker. An empty id means the run is complete.
type TurnPolicy interface {
	Next(conv *domain.Conversation, history []domain.Message, groupID string) string
}

// PolicyFor returns the policy selected by kind, defaulting to cyclic.
func PolicyFor(kind domain.TurnPolicyKind) TurnPolicy {
	if kind == domain.TurnPolicyAllOnce {
		return AllOncePolicy{}
	}
	return CyclicPolicy{}
}

// CyclicPolicy rotates through the active participants, starting after the
// author of the last participant reply. It never completes on its own; the
// run ends when a participant yields.
type CyclicPolicy struct{}

// Next implements TurnPolicy.
func (CyclicPolicy) Next(conv *domain.Conversation, history []domain.Message, _ string) string {
	active := conv.ActiveParticipants
	if len(active) == 0 {
		return ""
	}
	last := lastSpeaker(history)
	for i, id := range active {
		if id == last {
			return active[(i+1)%len(active)]
		}
	}
	return active[0]
}

// AllOncePolicy lets each active participant answer the current prompt group
// once, in roster order.
type AllOncePolicy struct{}

// Next implements TurnPolicy.
func (AllOncePolicy) Next(conv *domain.Conversation, history []domain.Message, groupID string) string {
	spoke := make(map[string]bool)
	for i := range history {
		msg := &history[i]
		if msg.PromptGroupID != groupID || msg.Role != domain.MessageRoleAI || msg.IsSystem() {
			continue
		}
		spoke[msg.ParticipantID] = true
	}
	for _, id := range conv.ActiveParticipants {
		if !spoke[id] {
			return id
		}
	}
	return ""
}

// lastSpeaker returns the participant of the most recent non-system AI message.
func lastSpeaker(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := &history[i]
		if msg.Role == domain.MessageRoleAI && !msg.IsSystem() && msg.ParticipantID != "" {
			return msg.ParticipantID
		}
	}
	return ""
}

// firstResponse reports whether no participant has answered groupID yet.
func firstResponse(history []domain.Message, groupID string) bool {
	for i := range history {
		msg := &history[i]
		if msg.PromptGroupID == groupID && msg.Role == domain.MessageRoleAI && !msg.IsSystem() {
			return false
		}
	}
	return true
}

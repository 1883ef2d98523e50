package domain

import "time"

// Event is a conversation-scoped notification pushed to live subscribers.
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Ts             int64       `json:"ts"`
	Data           interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, conversationID string, data interface{}) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Ts:             time.Now().UnixMilli(),
		Data:           data,
	}
}

// SpeakerPayload is the data of a speaker.changed event. An empty ParticipantID means nobody is speaking.
type SpeakerPayload struct {
	ParticipantID string `json:"participant_id"`
}

// LoopStatePayload is the data of a loop.state event.
type LoopStatePayload struct {
	State  LoopState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

package ws

// Message types from client to server.
const (
	TypeSubscribe = "subscribe"
)

// Message types from server to client. Conversation events are sent as
// domain.Event with their own type.
const (
	TypeSubscribed = "subscribed"
	TypeError      = "error"
)

// Error codes.
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
	ErrorCodeNotFound       = "CONVERSATION_NOT_FOUND"
)

// ClientMessage is anything a client sends.
type ClientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ControlMessage acknowledges a subscription or reports an error.
type ControlMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	ConversationID string `json:"conversation_id,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
}

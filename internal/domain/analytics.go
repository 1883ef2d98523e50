package domain

// ParticipantUsage aggregates one participant's replies.
type ParticipantUsage struct {
	ParticipantID     string  `json:"participant_id"`
	Name              string  `json:"name"`
	Messages          int     `json:"messages"`
	Percentage        float64 `json:"percentage"`
	AvgResponseTimeMs int64   `json:"avg_response_time_ms"`
	MinResponseTimeMs int64   `json:"min_response_time_ms"`
	MaxResponseTimeMs int64   `json:"max_response_time_ms"`
}

// DailyActivity counts what was created on one day (YYYY-MM-DD).
type DailyActivity struct {
	Date          string `json:"date"`
	Messages      int    `json:"messages"`
	Conversations int    `json:"conversations"`
}

// Analytics summarizes usage across every conversation.
type Analytics struct {
	TotalConversations int                `json:"total_conversations"`
	TotalMessages      int                `json:"total_messages"`
	AIMessages         int                `json:"ai_messages"`
	AvgResponseTimeMs  int64              `json:"avg_response_time_ms"`
	Participants       []ParticipantUsage `json:"participants"`
	Daily              []DailyActivity    `json:"daily"`
}

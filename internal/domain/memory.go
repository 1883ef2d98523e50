package domain

import "time"

// MemoryRecord is a short piece of text a participant remembers across conversations.
type MemoryRecord struct {
	ID              string     `json:"id"`
	ParticipantID   string     `json:"participant_id"`
	MemoryType      MemoryType `json:"memory_type"`
	Key             string     `json:"key"`
	Content         string     `json:"content"`
	Context         string     `json:"context,omitempty"`
	ImportanceScore float64    `json:"importance_score"`
	AccessCount     int        `json:"access_count"`
	LastAccessed    *time.Time `json:"last_accessed,omitempty"`
	Embedding       []float64  `json:"embedding,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ScoredMemory pairs a memory with its similarity to a query.
type ScoredMemory struct {
	Memory     MemoryRecord `json:"memory"`
	Similarity float64      `json:"similarity"`
}

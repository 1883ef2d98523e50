package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedConversation inserts an idle cyclic conversation with the given participants.
func SeedConversation(t *testing.T, s store.Store, id string, participants ...string) *domain.Conversation {
	t.Helper()

	now := time.Now()
	conv := &domain.Conversation{
		ID:                 id,
		Title:              domain.DefaultConversationTitle,
		AgentRoles:         map[string]string{},
		ActiveParticipants: participants,
		TurnPolicy:         domain.TurnPolicyCyclic,
		LoopState:          domain.LoopStateIdle,
		LastActivity:       now,
		CreatedAt:          now,
	}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
	return conv
}

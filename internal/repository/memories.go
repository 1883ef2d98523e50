package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const memoryColumns = `memory_id, participant_id, memory_type, key, content, context, importance_score, access_count, last_accessed, embedding, created_at`

// CreateMemory stores a memory record.
func (s *SQLiteStore) CreateMemory(ctx context.Context, mem *domain.MemoryRecord) error {
	embedding, err := encodeJSON(mem.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	var lastAccessed sql.NullTime
	if mem.LastAccessed != nil {
		lastAccessed = sql.NullTime{Time: *mem.LastAccessed, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.ParticipantID, mem.MemoryType, mem.Key, mem.Content, nullString(mem.Context),
		mem.ImportanceScore, mem.AccessCount, lastAccessed, embedding, mem.CreatedAt)
	return err
}

// ListMemories returns a participant's memories, newest first.
func (s *SQLiteStore) ListMemories(ctx context.Context, participantID string, limit int) ([]domain.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE participant_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryMemories(ctx, query, participantID)
}

// ListMemoriesByImportance returns up to limit memories ordered by importance, highest first.
func (s *SQLiteStore) ListMemoriesByImportance(ctx context.Context, participantID string, limit int) ([]domain.MemoryRecord, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE participant_id = ? ORDER BY importance_score DESC, created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryMemories(ctx, query, participantID)
}

// TouchMemories bumps access_count and last_accessed of the given memories.
func (s *SQLiteStore) TouchMemories(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []interface{}{at}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE memory_id IN (`+placeholders(len(ids))+`)`,
		args...)
	return err
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...interface{}) ([]domain.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []domain.MemoryRecord
	for rows.Next() {
		var mem domain.MemoryRecord
		var memContext, embedding sql.NullString
		var lastAccessed sql.NullTime
		if err := rows.Scan(&mem.ID, &mem.ParticipantID, &mem.MemoryType, &mem.Key, &mem.Content, &memContext,
			&mem.ImportanceScore, &mem.AccessCount, &lastAccessed, &embedding, &mem.CreatedAt); err != nil {
			return nil, err
		}
		mem.Context = memContext.String
		if lastAccessed.Valid {
			t := lastAccessed.Time
			mem.LastAccessed = &t
		}
		if err := decodeJSON(embedding, &mem.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding of %s: %w", mem.ID, err)
		}
		memories = append(memories, mem)
	}
	return memories, rows.Err()
}

// CreateSummary stores a conversation summary.
func (s *SQLiteStore) CreateSummary(ctx context.Context, sum *domain.ConversationSummary) error {
	cols := make([]sql.NullString, 0, 4)
	for _, list := range [][]string{sum.KeyInsights, sum.LearnedFacts, sum.UserPreferences, sum.FollowUpTopics} {
		encoded, err := encodeJSON(list)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		cols = append(cols, encoded)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_summaries (summary_id, conversation_id, participant_id, summary, key_insights,
			learned_facts, user_preferences, follow_up_topics, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ConversationID, sum.ParticipantID, nullString(sum.Summary), cols[0], cols[1], cols[2], cols[3], sum.CreatedAt)
	return err
}

// ListSummaries returns summaries of a conversation, oldest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, conversationID string) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary_id, conversation_id, participant_id, summary, key_insights, learned_facts, user_preferences,
			follow_up_topics, created_at FROM conversation_summaries WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var sum domain.ConversationSummary
		var text, insights, facts, prefs, topics sql.NullString
		if err := rows.Scan(&sum.ID, &sum.ConversationID, &sum.ParticipantID, &text, &insights, &facts, &prefs,
			&topics, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sum.Summary = text.String
		lists := []struct {
			col sql.NullString
			dst *[]string
		}{
			{insights, &sum.KeyInsights},
			{facts, &sum.LearnedFacts},
			{prefs, &sum.UserPreferences},
			{topics, &sum.FollowUpTopics},
		}
		for _, l := range lists {
			if err := decodeJSON(l.col, l.dst); err != nil {
				return nil, fmt.Errorf("failed to decode summary %s: %w", sum.ID, err)
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// UsageByParticipant aggregates AI replies per participant, busiest first.
// Response times of zero are left out of the averages.
func (s *SQLiteStore) UsageByParticipant(ctx context.Context) ([]domain.ParticipantUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id, COUNT(*),
			AVG(CASE WHEN response_time_ms > 0 THEN response_time_ms END),
			MIN(CASE WHEN response_time_ms > 0 THEN response_time_ms END),
			MAX(CASE WHEN response_time_ms > 0 THEN response_time_ms END)
		FROM messages
		WHERE role = ? AND participant_id IS NOT NULL AND participant_id != ''
		GROUP BY participant_id
		ORDER BY COUNT(*) DESC, participant_id ASC`, domain.MessageRoleAI)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	var usage []domain.ParticipantUsage
	for rows.Next() {
		var u domain.ParticipantUsage
		var avg sql.NullFloat64
		var lo, hi sql.NullInt64
		if err := rows.Scan(&u.ParticipantID, &u.Messages, &avg, &lo, &hi); err != nil {
			return nil, err
		}
		u.AvgResponseTimeMs = int64(avg.Float64 + 0.5)
		u.MinResponseTimeMs = lo.Int64
		u.MaxResponseTimeMs = hi.Int64
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// CountTotals returns the number of conversations, messages and AI messages.
func (s *SQLiteStore) CountTotals(ctx context.Context) (conversations, messages, ai int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE role = ?)`, domain.MessageRoleAI).
		Scan(&conversations, &messages, &ai)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count totals: %w", err)
	}
	return conversations, messages, ai, nil
}

// ActivitySince returns creation times of messages and conversations created at or after since.
func (s *SQLiteStore) ActivitySince(ctx context.Context, since time.Time) (messages, conversations []time.Time, err error) {
	if messages, err = s.queryTimes(ctx, `SELECT created_at FROM messages WHERE created_at >= ?`, since); err != nil {
		return nil, nil, fmt.Errorf("failed to list message activity: %w", err)
	}
	if conversations, err = s.queryTimes(ctx, `SELECT created_at FROM conversations WHERE created_at >= ?`, since); err != nil {
		return nil, nil, fmt.Errorf("failed to list conversation activity: %w", err)
	}
	return messages, conversations, nil
}

func (s *SQLiteStore) queryTimes(ctx context.Context, query string, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const conversationColumns = `conversation_id, title, archived, pinned, folder_id, agent_roles, active_participants, turn_policy, loop_state, last_activity, created_at`

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	roles, err := encodeJSON(conv.AgentRoles)
	if err != nil {
		return fmt.Errorf("failed to encode agent roles: %w", err)
	}
	active, err := encodeJSON(conv.ActiveParticipants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, boolInt(conv.Archived), boolInt(conv.Pinned), nullString(conv.FolderID),
		roles, active, conv.TurnPolicy, conv.LoopState, conv.LastActivity, conv.CreatedAt)
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations lists conversations, pinned first, then by most recent activity.
func (s *SQLiteStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1 = 1`
	var args []interface{}
	if !filter.IncludeArchived {
		query += ` AND archived = 0`
	}
	if filter.FolderID != "" {
		query += ` AND folder_id = ?`
		args = append(args, filter.FolderID)
	}
	query += ` ORDER BY pinned DESC, last_activity DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// UpdateConversation writes every mutable conversation field.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	roles, err := encodeJSON(conv.AgentRoles)
	if err != nil {
		return fmt.Errorf("failed to encode agent roles: %w", err)
	}
	active, err := encodeJSON(conv.ActiveParticipants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, archived = ?, pinned = ?, folder_id = ?, agent_roles = ?,
			active_participants = ?, turn_policy = ?, last_activity = ? WHERE conversation_id = ?`,
		conv.Title, boolInt(conv.Archived), boolInt(conv.Pinned), nullString(conv.FolderID), roles,
		active, conv.TurnPolicy, conv.LastActivity, conv.ID)
	return err
}

// UpdateConversationRoles replaces the role map of a conversation.
func (s *SQLiteStore) UpdateConversationRoles(ctx context.Context, id string, roles map[string]string) error {
	encoded, err := encodeJSON(roles)
	if err != nil {
		return fmt.Errorf("failed to encode agent roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET agent_roles = ? WHERE conversation_id = ?`, encoded, id)
	return err
}

// UpdateLoopState records the loop state of a conversation.
func (s *SQLiteStore) UpdateLoopState(ctx context.Context, id string, state domain.LoopState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET loop_state = ? WHERE conversation_id = ?`, state, id)
	return err
}

// TouchConversation bumps last_activity.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = ? WHERE conversation_id = ?`, at, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var archived, pinned int
	var folderID, roles, active sql.NullString
	if err := row.Scan(&conv.ID, &conv.Title, &archived, &pinned, &folderID, &roles, &active,
		&conv.TurnPolicy, &conv.LoopState, &conv.LastActivity, &conv.CreatedAt); err != nil {
		return nil, err
	}
	conv.Archived = archived != 0
	conv.Pinned = pinned != 0
	conv.FolderID = folderID.String
	conv.AgentRoles = map[string]string{}
	if err := decodeJSON(roles, &conv.AgentRoles); err != nil {
		return nil, fmt.Errorf("failed to decode agent roles: %w", err)
	}
	if err := decodeJSON(active, &conv.ActiveParticipants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return &conv, nil
}

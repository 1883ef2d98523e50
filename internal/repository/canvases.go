package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// GetCanvas retrieves the code canvas of a conversation.
func (s *SQLiteStore) GetCanvas(ctx context.Context, conversationID string) (*domain.CodeCanvas, error) {
	var c domain.CodeCanvas
	var description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT canvas_id, conversation_id, language, title, description, content, version, updated_at
			FROM code_canvases WHERE conversation_id = ?`, conversationID).
		Scan(&c.ID, &c.ConversationID, &c.Language, &c.Title, &description, &c.Content, &c.Version, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	return &c, nil
}

// SaveCanvas creates the conversation's canvas at version 1, or replaces its content
// and increments the version by exactly one. Empty metadata keeps the stored value.
func (s *SQLiteStore) SaveCanvas(ctx context.Context, canvas *domain.CodeCanvas) (*domain.CodeCanvas, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE code_canvases SET content = ?,
			language = COALESCE(NULLIF(?, ''), language),
			title = COALESCE(NULLIF(?, ''), title),
			description = COALESCE(NULLIF(?, ''), description),
			version = version + 1, updated_at = ?
			WHERE conversation_id = ?`,
		canvas.Content, canvas.Language, canvas.Title, canvas.Description, canvas.UpdatedAt, canvas.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update canvas: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		language := canvas.Language
		if language == "" {
			language = domain.DefaultCanvasLanguage
		}
		title := canvas.Title
		if title == "" {
			title = domain.DefaultCanvasTitle
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO code_canvases (canvas_id, conversation_id, language, title, description, content, version, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			canvas.ID, canvas.ConversationID, language, title, nullString(canvas.Description), canvas.Content, canvas.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert canvas: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit canvas: %w", err)
	}
	return s.GetCanvas(ctx, canvas.ConversationID)
}

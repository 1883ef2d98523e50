package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const messageColumns = `message_id, conversation_id, role, content, participant_id, response_time_ms, thought_process, tool_calls, tool_name, parent_message_id, prompt_group_id, created_at`

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, nullString(msg.ParticipantID), msg.ResponseTimeMs,
		nullString(msg.ThoughtProcess), nullStringBytes(msg.ToolCalls), nullString(msg.ToolName),
		nullString(msg.ParentMessageID), nullString(msg.PromptGroupID), msg.CreatedAt)
	return err
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns messages of a conversation in creation order.
// When limit > 0 only the most recent limit messages are returned, still oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, message_id ASC`
	args := []interface{}{conversationID}
	if limit > 0 {
		query = `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, message_id DESC LIMIT ?) ORDER BY created_at ASC, message_id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CountMessages counts messages of one role in a conversation.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string, role domain.MessageRole) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = ?`, conversationID, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var participantID, thought, toolCalls, toolName, parentID, groupID sql.NullString
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &participantID, &msg.ResponseTimeMs,
		&thought, &toolCalls, &toolName, &parentID, &groupID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.ParticipantID = participantID.String
	msg.ThoughtProcess = thought.String
	if toolCalls.Valid {
		msg.ToolCalls = json.RawMessage(toolCalls.String)
	}
	msg.ToolName = toolName.String
	msg.ParentMessageID = parentID.String
	msg.PromptGroupID = groupID.String
	return &msg, nil
}

const fileColumns = `file_id, conversation_id, message_id, file_name, file_url, file_type, file_size, folder_path, file_category, extracted_content, analysis_summary, created_at`

// CreateFile records a file shared into a conversation.
func (s *SQLiteStore) CreateFile(ctx context.Context, f *domain.ChatFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ConversationID, nullString(f.MessageID), f.FileName, f.FileURL, nullString(f.FileType), f.FileSize,
		nullString(f.FolderPath), nullString(f.FileCategory), nullString(f.ExtractedContent),
		nullString(f.AnalysisSummary), f.CreatedAt)
	return err
}

// ListFiles returns the repository files of a conversation.
func (s *SQLiteStore) ListFiles(ctx context.Context, conversationID string) ([]domain.ChatFile, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM chat_files WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
}

// ListMessageFiles returns the files attached to one message.
func (s *SQLiteStore) ListMessageFiles(ctx context.Context, messageID string) ([]domain.ChatFile, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM chat_files WHERE message_id = ? ORDER BY created_at ASC`, messageID)
}

// UpdateFileExtraction stores extracted text and its summary for a file.
func (s *SQLiteStore) UpdateFileExtraction(ctx context.Context, id, extracted, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_files SET extracted_content = ?, analysis_summary = ? WHERE file_id = ?`,
		nullString(extracted), nullString(summary), id)
	return err
}

func (s *SQLiteStore) queryFiles(ctx context.Context, query string, args ...interface{}) ([]domain.ChatFile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.ChatFile
	for rows.Next() {
		var f domain.ChatFile
		var messageID, fileType, folderPath, category, extracted, summary sql.NullString
		if err := rows.Scan(&f.ID, &f.ConversationID, &messageID, &f.FileName, &f.FileURL, &fileType, &f.FileSize,
			&folderPath, &category, &extracted, &summary, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.MessageID = messageID.String
		f.FileType = fileType.String
		f.FolderPath = folderPath.String
		f.FileCategory = category.String
		f.ExtractedContent = extracted.String
		f.AnalysisSummary = summary.String
		files = append(files, f)
	}
	return files, rows.Err()
}

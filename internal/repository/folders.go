package store

import (
	"context"
	"database/sql"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// CreateFolder creates a conversation folder.
func (s *SQLiteStore) CreateFolder(ctx context.Context, f *domain.Folder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (folder_id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, nullString(f.Color), f.CreatedAt)
	return err
}

// GetFolder retrieves a folder by ID.
func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (*domain.Folder, error) {
	var f domain.Folder
	var color sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT folder_id, name, color, created_at FROM folders WHERE folder_id = ?`, id).
		Scan(&f.ID, &f.Name, &color, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Color = color.String
	return &f, nil
}

// ListFolders lists folders by name.
func (s *SQLiteStore) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT folder_id, name, color, created_at FROM folders ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		var f domain.Folder
		var color sql.NullString
		if err := rows.Scan(&f.ID, &f.Name, &color, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Color = color.String
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// RenameFolder renames a folder.
func (s *SQLiteStore) RenameFolder(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE folders SET name = ? WHERE folder_id = ?`, name, id)
	return err
}

// DeleteFolder removes a folder; its conversations move to no folder.
func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET folder_id = NULL WHERE folder_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE folder_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

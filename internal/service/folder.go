package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

func (s *Service) CreateFolder(ctx context.Context, name, color string) (*domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("folder name is required")
	}
	f := &domain.Folder{ID: domain.NewID("fold"), Name: name, Color: color, CreatedAt: time.Now()}
	if err := s.store.CreateFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return f, nil
}

func (s *Service) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	if folders == nil {
		folders = []domain.Folder{}
	}
	return folders, nil
}

func (s *Service) RenameFolder(ctx context.Context, id, name string) (*domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("folder name is required")
	}
	if err := s.requireFolder(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.RenameFolder(ctx, id, name); err != nil {
		return nil, fmt.Errorf("failed to rename folder: %w", err)
	}
	return s.store.GetFolder(ctx, id)
}

// DeleteFolder removes a folder; its conversations move to no folder.
func (s *Service) DeleteFolder(ctx context.Context, id string) error {
	if err := s.requireFolder(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteFolder(ctx, id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

func (s *Service) requireFolder(ctx context.Context, id string) error {
	f, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get folder: %w", err)
	}
	if f == nil {
		return domain.NewNotFoundError("folder", id)
	}
	return nil
}

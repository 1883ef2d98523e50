package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

func (s *Service) ListMemories(ctx context.Context, participantID string, limit int) ([]domain.MemoryRecord, error) {
	if err := s.requireParticipant(participantID); err != nil {
		return nil, err
	}
	memories, err := s.store.ListMemories(ctx, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	if memories == nil {
		memories = []domain.MemoryRecord{}
	}
	return memories, nil
}

func (s *Service) CreateMemory(ctx context.Context, participantID string, req domain.CreateMemoryRequest) (*domain.MemoryRecord, error) {
	if err := s.requireParticipant(participantID); err != nil {
		return nil, err
	}
	return s.memory.Store(ctx, participantID, &req)
}

// ImportDocument extracts memories for a participant from an uploaded document.
func (s *Service) ImportDocument(ctx context.Context, participantID string, req domain.ImportDocumentRequest) ([]domain.MemoryRecord, error) {
	if err := s.requireParticipant(participantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileURL) == "" {
		return nil, domain.NewValidationError("file_url is required")
	}
	records, err := s.memory.ImportDocument(ctx, participantID, &req)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.MemoryRecord{}
	}
	return records, nil
}

// SearchMemories previews which memories a participant would recall for query.
func (s *Service) SearchMemories(ctx context.Context, participantID, query string, k int) ([]domain.ScoredMemory, error) {
	if err := s.requireParticipant(participantID); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.config.MemoryTopK
	}
	scored, err := s.memory.Retrieve(ctx, participantID, query, k)
	if err != nil {
		return nil, err
	}
	if scored == nil {
		scored = []domain.ScoredMemory{}
	}
	return scored, nil
}

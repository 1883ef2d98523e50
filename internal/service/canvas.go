package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

func (s *Service) GetCanvas(ctx context.Context, conversationID string) (*domain.CodeCanvas, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	canvas, err := s.store.GetCanvas(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas: %w", err)
	}
	if canvas == nil {
		return nil, domain.NewNotFoundError("canvas", conversationID)
	}
	return canvas, nil
}

// SaveCanvas replaces the canvas content, creating the canvas at version 1
// or bumping its version by one.
func (s *Service) SaveCanvas(ctx context.Context, conversationID string, req domain.SaveCanvasRequest) (*domain.CodeCanvas, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	canvas, err := s.store.SaveCanvas(ctx, &domain.CodeCanvas{
		ID:             domain.NewID("canvas"),
		ConversationID: conversationID,
		Language:       req.Language,
		Title:          req.Title,
		Description:    req.Description,
		Content:        req.Content,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save canvas: %w", err)
	}
	s.publish(domain.EventTypeCanvasUpdated, conversationID, canvas)
	return canvas, nil
}

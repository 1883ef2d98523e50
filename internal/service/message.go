package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// SendMessage stores a human message with its attachments and starts, or
// feeds, the conversation's turn loop.
func (s *Service) SendMessage(ctx context.Context, conversationID string, req domain.SendMessageRequest) (*domain.SendMessageResponse, error) {
	text := strings.TrimSpace(req.Content)
	if text == "" && len(req.Attachments) == 0 {
		return nil, domain.NewValidationError("message content or files are required")
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.FileName) == "" || strings.TrimSpace(a.FileURL) == "" {
			return nil, domain.NewValidationError("attachments need file_name and file_url")
		}
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	content := text
	if len(req.Attachments) > 0 {
		names := make([]string, 0, len(req.Attachments))
		for _, a := range req.Attachments {
			names = append(names, a.FileName)
		}
		content = strings.TrimSpace(content + "\n\n📎 Files shared: " + strings.Join(names, ", "))
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conv.ID,
		Role:           domain.MessageRoleHuman,
		Content:        content,
		CreatedAt:      now,
	}
	msg.PromptGroupID = msg.ID
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	for _, a := range req.Attachments {
		file := &domain.ChatFile{
			ID:             domain.NewID("file"),
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			FileName:       a.FileName,
			FileURL:        a.FileURL,
			FileType:       a.FileType,
			FileSize:       a.FileSize,
			FileCategory:   "attachment",
			CreatedAt:      now,
		}
		if err := s.store.CreateFile(ctx, file); err != nil {
			return nil, fmt.Errorf("failed to attach file: %w", err)
		}
		if a.Extract {
			s.extractFile(ctx, file)
		}
		msg.Attachments = append(msg.Attachments, *file)
	}

	if err := s.store.TouchConversation(ctx, conv.ID, now); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	s.publish(domain.EventTypeMessageCreated, conv.ID, msg)
	s.autoTitle(ctx, conv, text)

	if err := s.orchestrator.Start(ctx, conv.ID, msg.ID); err != nil {
		return nil, fmt.Errorf("failed to start turn loop: %w", err)
	}
	state, err := s.orchestrator.State(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &domain.SendMessageResponse{Message: msg, LoopState: state}, nil
}

// ListMessages returns a conversation's messages, oldest first, with the
// attachments of human messages filled in. limit <= 0 returns all.
func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	for i := range messages {
		if messages[i].Role != domain.MessageRoleHuman {
			continue
		}
		files, err := s.store.ListMessageFiles(ctx, messages[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get attachments: %w", err)
		}
		messages[i].Attachments = files
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// StopConversation halts the loop and returns the resulting state.
func (s *Service) StopConversation(ctx context.Context, conversationID string) (domain.LoopState, error) {
	if err := s.orchestrator.Stop(ctx, conversationID); err != nil {
		return "", err
	}
	return domain.LoopStateStopped, nil
}

func (s *Service) LoopState(ctx context.Context, conversationID string) (domain.LoopState, error) {
	return s.orchestrator.State(ctx, conversationID)
}

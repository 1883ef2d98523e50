package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
)

const (
	titleMaxRunes     = 50
	fileAnalysisTitle = "File Analysis"
)

func (s *Service) CreateConversation(ctx context.Context, req domain.CreateConversationRequest) (*domain.Conversation, error) {
	participants := req.ActiveParticipants
	if len(participants) == 0 {
		participants = s.Roster().IDs()
	}
	participants, err := s.validateParticipants(participants)
	if err != nil {
		return nil, err
	}

	policy := req.TurnPolicy
	if policy == "" {
		policy = domain.TurnPolicyCyclic
	}
	if !policy.Valid() {
		return nil, domain.NewValidationError("invalid turn_policy %q", policy)
	}

	roles := make(map[string]string, len(req.AgentRoles))
	for id, role := range req.AgentRoles {
		if err := s.requireParticipant(id); err != nil {
			return nil, err
		}
		roles[id] = role
	}

	if req.FolderID != "" {
		if err := s.requireFolder(ctx, req.FolderID); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultConversationTitle
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:                 domain.NewID("conv"),
		Title:              title,
		FolderID:           req.FolderID,
		AgentRoles:         roles,
		ActiveParticipants: participants,
		TurnPolicy:         policy,
		LoopState:          domain.LoopStateIdle,
		LastActivity:       now,
		CreatedAt:          now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.NewNotFoundError("conversation", id)
	}
	return conv, nil
}

// ListConversations returns pinned conversations first, then by last activity.
func (s *Service) ListConversations(ctx context.Context, filter store.ConversationFilter) ([]domain.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

func (s *Service) UpdateConversation(ctx context.Context, id string, req domain.UpdateConversationRequest) (*domain.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.NewValidationError("title must not be empty")
		}
		conv.Title = title
	}
	if req.Pinned != nil {
		conv.Pinned = *req.Pinned
	}
	if req.Archived != nil {
		conv.Archived = *req.Archived
	}
	if req.FolderID != nil {
		if *req.FolderID != "" {
			if err := s.requireFolder(ctx, *req.FolderID); err != nil {
				return nil, err
			}
		}
		conv.FolderID = *req.FolderID
	}
	if req.ActiveParticipants != nil {
		participants, err := s.validateParticipants(req.ActiveParticipants)
		if err != nil {
			return nil, err
		}
		conv.ActiveParticipants = participants
	}
	if req.TurnPolicy != nil {
		if !req.TurnPolicy.Valid() {
			return nil, domain.NewValidationError("invalid turn_policy %q", *req.TurnPolicy)
		}
		conv.TurnPolicy = *req.TurnPolicy
	}
	if req.AgentRoles != nil {
		roles := make(map[string]string, len(req.AgentRoles))
		for pid, role := range req.AgentRoles {
			if err := s.requireParticipant(pid); err != nil {
				return nil, err
			}
			if role = strings.TrimSpace(role); role != "" {
				roles[pid] = role
			}
		}
		conv.AgentRoles = roles
	}

	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	if conv.Archived {
		s.orchestrator.DropCache(conv.ID)
	}
	s.publish(domain.EventTypeConversationUpdated, conv.ID, conv)
	return conv, nil
}

func (s *Service) validateParticipants(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := s.requireParticipant(id); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, domain.NewValidationError("at least one participant is required")
	}
	return out, nil
}

// autoTitle names a conversation after its first human message.
func (s *Service) autoTitle(ctx context.Context, conv *domain.Conversation, content string) {
	if conv.Title != domain.DefaultConversationTitle {
		return
	}
	n, err := s.store.CountMessages(ctx, conv.ID, domain.MessageRoleHuman)
	if err != nil || n > 1 {
		return
	}
	conv.Title = TitleFrom(content)
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		s.logger.Sugar().Warnw("failed to set conversation title", "conversation_id", conv.ID, "error", err)
		return
	}
	s.publish(domain.EventTypeConversationUpdated, conv.ID, conv)
}

// TitleFrom derives a conversation title from the first message text.
func TitleFrom(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return fileAnalysisTitle
	}
	r := []rune(content)
	if len(r) <= titleMaxRunes {
		return content
	}
	return string(r[:titleMaxRunes]) + "..."
}

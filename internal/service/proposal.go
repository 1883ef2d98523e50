package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

func (s *Service) ListProposals(ctx context.Context, conversationID string, status domain.ProposalStatus) ([]domain.RoleProposal, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposals(ctx, conversationID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	if proposals == nil {
		proposals = []domain.RoleProposal{}
	}
	return proposals, nil
}

// DecideProposal approves or denies a pending role change. Approval merges
// exactly the proposed participant's role and posts a system notice.
func (s *Service) DecideProposal(ctx context.Context, proposalID string, req domain.ProposalDecisionRequest) (*domain.RoleProposal, error) {
	var to domain.ProposalStatus
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case DecisionApprove:
		to = domain.ProposalStatusApproved
	case DecisionDeny:
		to = domain.ProposalStatusDenied
	default:
		return nil, domain.NewValidationError("decision must be %q or %q", DecisionApprove, DecisionDeny)
	}

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil {
		return nil, domain.NewNotFoundError("proposal", proposalID)
	}

	updated, err := s.store.TransitionProposal(ctx, proposalID, domain.ProposalStatusPending, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update proposal status: %w", err)
	}
	if !updated {
		return nil, domain.NewConflictError("proposal %s is not pending", proposalID)
	}

	if to == domain.ProposalStatusApproved {
		if err := s.applyRoleChange(ctx, proposal); err != nil {
			return nil, err
		}
	}

	proposal, err = s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	s.publish(domain.EventTypeProposalDecided, proposal.ConversationID, proposal)
	return proposal, nil
}

func (s *Service) applyRoleChange(ctx context.Context, p *domain.RoleProposal) error {
	conv, err := s.GetConversation(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	roles := make(map[string]string, len(conv.AgentRoles)+1)
	for id, role := range conv.AgentRoles {
		roles[id] = role
	}
	roles[p.ParticipantID] = p.NewRole
	if err := s.store.UpdateConversationRoles(ctx, conv.ID, roles); err != nil {
		return fmt.Errorf("failed to update roles: %w", err)
	}
	conv.AgentRoles = roles
	s.publish(domain.EventTypeConversationUpdated, conv.ID, conv)

	notice := &domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conv.ID,
		Role:           domain.MessageRoleAI,
		Content:        domain.SystemMessagePrefix + " Roles have been updated. New roles are - " + s.describeRoles(conv, roles),
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, notice); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	s.publish(domain.EventTypeMessageCreated, conv.ID, notice)
	return nil
}

// describeRoles lists roles as "Name: role", active participants first.
func (s *Service) describeRoles(conv *domain.Conversation, roles map[string]string) string {
	roster := s.Roster()
	var parts []string
	seen := make(map[string]bool, len(roles))
	for _, id := range conv.ActiveParticipants {
		if role, ok := roles[id]; ok {
			parts = append(parts, roster.NameOf(id)+": "+role)
			seen[id] = true
		}
	}
	var rest []string
	for id := range roles {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		parts = append(parts, roster.NameOf(id)+": "+roles[id])
	}
	return strings.Join(parts, ", ")
}

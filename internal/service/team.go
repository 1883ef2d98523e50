package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

const fallbackJustification = "Fell back to default assignment due to an error."

var teamSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"roles": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"model_id":      map[string]interface{}{"type": "string"},
					"assigned_role": map[string]interface{}{"type": "string"},
					"justification": map[string]interface{}{"type": "string"},
				},
			},
		},
		"allow_dynamic_reassignment": map[string]interface{}{"type": "boolean"},
		"reassignment_triggers": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
}

type teamAnswer struct {
	Roles                    []domain.RoleAssignment `json:"roles"`
	AllowDynamicReassignment bool                    `json:"allow_dynamic_reassignment"`
	ReassignmentTriggers     []string                `json:"reassignment_triggers"`
}

// NegotiateRoles asks the model to staff the conversation's active
// participants for a task. When the model fails, roles are dealt
// round-robin from domain.AgentRoles.
func (s *Service) NegotiateRoles(ctx context.Context, conversationID string, req domain.NegotiateRolesRequest) (*domain.TeamFormation, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	task := strings.TrimSpace(req.Prompt)
	if task == "" {
		if task, err = s.latestHumanMessage(ctx, conv.ID); err != nil {
			return nil, err
		}
	}
	if task == "" {
		return nil, domain.NewValidationError("a prompt is required when the conversation has no human message")
	}

	team := &domain.TeamFormation{ConversationID: conv.ID}
	answer, err := s.askForTeam(ctx, conv, task)
	if err != nil {
		s.logger.Sugar().Warnw("team negotiation failed, using default roles", "conversation_id", conv.ID, "error", err)
		team.Fallback = true
		answer = &teamAnswer{}
	}
	team.AllowDynamicReassignment = answer.AllowDynamicReassignment
	team.ReassignmentTriggers = answer.ReassignmentTriggers
	if team.ReassignmentTriggers == nil {
		team.ReassignmentTriggers = []string{}
	}
	team.Roles = s.settleRoles(conv, answer.Roles)

	if req.Apply {
		roles := team.RoleMap()
		if err := s.store.UpdateConversationRoles(ctx, conv.ID, roles); err != nil {
			return nil, fmt.Errorf("failed to update roles: %w", err)
		}
		conv.AgentRoles = roles
		team.Applied = true
		s.publish(domain.EventTypeConversationUpdated, conv.ID, conv)
	}
	return team, nil
}

func (s *Service) askForTeam(ctx context.Context, conv *domain.Conversation, task string) (*teamAnswer, error) {
	model := ""
	if s.config != nil {
		model = s.config.DefaultModel
	}
	res, err := s.llmClient.Invoke(ctx, &llm.InvokeRequest{
		Prompt:         s.buildTeamPrompt(conv, task),
		Model:          model,
		ResponseSchema: teamSchema,
	})
	if err != nil {
		return nil, err
	}
	var answer teamAnswer
	if err := json.Unmarshal(res.JSON(), &answer); err != nil {
		return nil, domain.NewParseError("team formation", err)
	}
	if len(answer.Roles) == 0 {
		return nil, domain.NewParseError("team formation", fmt.Errorf("no roles assigned"))
	}
	return &answer, nil
}

func (s *Service) buildTeamPrompt(conv *domain.Conversation, task string) string {
	roster := s.Roster()
	var b strings.Builder
	fmt.Fprintf(&b, "An AI team is being assembled to tackle the following user request: %q\n\n", task)
	b.WriteString("The available AI models are:\n")
	for _, id := range conv.ActiveParticipants {
		p, ok := roster.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): Known for being %s.\n", p.Name, p.ID, p.Personality)
	}
	b.WriteString("\nAssign each model exactly one role that best fits its strengths and the request, ")
	b.WriteString("with a short justification. Also decide whether roles may be reassigned as the ")
	b.WriteString("conversation evolves and list the events that should trigger a reassignment.\n\n")
	b.WriteString("Available roles: " + strings.Join(domain.AgentRoles, ", "))
	return b.String()
}

// settleRoles keeps one assignment per active participant in roster order,
// dropping unknown ids and filling gaps with the round-robin default.
func (s *Service) settleRoles(conv *domain.Conversation, proposed []domain.RoleAssignment) []domain.RoleAssignment {
	roster := s.Roster()
	byID := make(map[string]domain.RoleAssignment, len(proposed))
	for _, r := range proposed {
		r.Role = strings.TrimSpace(r.Role)
		if r.Role == "" {
			continue
		}
		if _, seen := byID[r.ParticipantID]; !seen {
			byID[r.ParticipantID] = r
		}
	}
	out := make([]domain.RoleAssignment, 0, len(conv.ActiveParticipants))
	for i, id := range conv.ActiveParticipants {
		r, ok := byID[id]
		if !ok {
			r = domain.RoleAssignment{
				ParticipantID: id,
				Role:          domain.AgentRoles[i%len(domain.AgentRoles)],
				Justification: fallbackJustification,
			}
		}
		r.ParticipantName = roster.NameOf(id)
		out = append(out, r)
	}
	return out
}

func (s *Service) latestHumanMessage(ctx context.Context, conversationID string) (string, error) {
	messages, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.MessageRoleHuman && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content, nil
		}
	}
	return "", nil
}

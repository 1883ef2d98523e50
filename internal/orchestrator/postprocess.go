package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/directive"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
)

var thinkBlock = regexp.MustCompile(`<think>([\s\S]*?)</think>`)

// extractThoughts splits <think> blocks out of a reply.
func extractThoughts(raw string) (thought, text string) {
	var parts []string
	for _, m := range thinkBlock.FindAllStringSubmatch(raw, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n"), strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
}

// parseToolCalls reports whether text is a tool-call envelope with at least one call.
func parseToolCalls(text string) ([]domain.ToolCall, bool) {
	body := strings.TrimSpace(llm.StripCodeFence(text))
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}
	var env domain.ToolCallEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || len(env.ToolCalls) == 0 {
		return nil, false
	}
	return env.ToolCalls, true
}

// turnContext is what directive handlers need to know about the current turn.
type turnContext struct {
	loop    *loop
	conv    *domain.Conversation
	speaker domain.Participant
	cache   *memory.ContextCache
}

type roleChange struct {
	ModelID       string `json:"model_id"`
	NewRole       string `json:"new_role"`
	Justification string `json:"justification"`
}

// applyDirectives performs the side effects of the tags in text and returns
// the text with each handled tag replaced by its marker.
func (o *Orchestrator) applyDirectives(ctx context.Context, tc *turnContext, text string) string {
	ds := directive.Parse(text)
	if len(ds) == 0 {
		return text
	}

	acted := make(map[directive.Kind]bool)
	out := directive.Replace(text, ds, func(d directive.Directive) (string, bool) {
		switch d.Kind {
		case directive.KindYield:
			return "", true
		case directive.KindDisagree:
			o.countDirective(d.Kind, metrics.OutcomeOK)
			return fmt.Sprintf("(Disagreed: %s)", d.Payload), true
		case directive.KindVoteNeeded:
			o.countDirective(d.Kind, metrics.OutcomeOK)
			return fmt.Sprintf("(Vote requested on: %s)", d.Payload), true
		case directive.KindSuggestRoles:
			o.countDirective(d.Kind, metrics.OutcomeOK)
			return fmt.Sprintf("(Role suggestion: %s)", d.Payload), true
		}

		if acted[d.Kind] {
			return "", false
		}
		acted[d.Kind] = true

		switch d.Kind {
		case directive.KindKnowledgeGap:
			return o.research(ctx, tc, d.Payload), true
		case directive.KindGenerateImage:
			return o.generateImage(ctx, d.Payload), true
		case directive.KindUpdateCanvas:
			return o.updateCanvas(ctx, tc, d.Payload), true
		case directive.KindProposeRoleChange:
			o.proposeRoleChange(ctx, tc, d.Payload)
			return "", true
		}
		return "", false
	})
	return strings.TrimSpace(out)
}

func (o *Orchestrator) research(ctx context.Context, tc *turnContext, query string) string {
	res, err := o.callLLM(ctx, "research", &llm.InvokeRequest{
		Prompt:               "Research and provide detailed information about: " + query,
		Model:                o.opts.ResearchModel,
		AllowInternetContext: true,
	})
	if err != nil {
		o.logger.Warn("knowledge gap research failed",
			zap.String("conversation_id", tc.conv.ID),
			zap.String("participant", tc.speaker.ID),
			zap.String("directive", string(directive.KindKnowledgeGap)),
			zap.Error(err))
		o.countDirective(directive.KindKnowledgeGap, metrics.OutcomeError)
		return fmt.Sprintf("[Knowledge gap research failed: %s]", query)
	}

	if o.memory != nil {
		if _, err := o.memory.StoreResearch(ctx, tc.speaker.ID, query, res.Text); err != nil {
			o.logger.Warn("failed to store research memory",
				zap.String("conversation_id", tc.conv.ID),
				zap.String("participant", tc.speaker.ID),
				zap.Error(err))
		}
	}
	tc.cache.AddResearch(query, res.Text)
	o.countDirective(directive.KindKnowledgeGap, metrics.OutcomeOK)
	return fmt.Sprintf("(Research completed for \"%s\")", query)
}

func (o *Orchestrator) generateImage(ctx context.Context, desc string) string {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, o.opts.LLMTimeout)
	defer cancel()
	img, err := o.llm.GenerateImage(callCtx, desc)
	o.metrics.ObserveRemoteCall("image", start)
	if err != nil || img == nil || img.URL == "" {
		o.logger.Warn("image generation failed", zap.String("directive", string(directive.KindGenerateImage)), zap.Error(err))
		o.countDirective(directive.KindGenerateImage, metrics.OutcomeError)
		return fmt.Sprintf("[Image generation failed: %s]", desc)
	}
	o.countDirective(directive.KindGenerateImage, metrics.OutcomeOK)
	return fmt.Sprintf("\n\n![Generated Image](%s)\n*Generated: %s*\n", img.URL, desc)
}

func (o *Orchestrator) updateCanvas(ctx context.Context, tc *turnContext, code string) string {
	canvas, err := o.store.SaveCanvas(ctx, &domain.CodeCanvas{
		ID:             domain.NewID("canvas"),
		ConversationID: tc.conv.ID,
		Content:        code,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		o.logger.Warn("canvas update failed",
			zap.String("conversation_id", tc.conv.ID),
			zap.String("participant", tc.speaker.ID),
			zap.Error(err))
		o.countDirective(directive.KindUpdateCanvas, metrics.OutcomeError)
		return fmt.Sprintf("[Failed to update Code Canvas: %s]", err.Error())
	}
	o.publish(domain.NewEvent(domain.EventTypeCanvasUpdated, tc.conv.ID, canvas))
	o.countDirective(directive.KindUpdateCanvas, metrics.OutcomeOK)
	return "[Code Canvas Updated/Created with new code.]"
}

// proposeRoleChange records a pending proposal. Malformed proposals are
// logged and dropped.
func (o *Orchestrator) proposeRoleChange(ctx context.Context, tc *turnContext, payload string) {
	drop := func(reason string, err error) {
		o.logger.Warn("dropping role change proposal",
			zap.String("conversation_id", tc.conv.ID),
			zap.String("participant", tc.speaker.ID),
			zap.String("reason", reason),
			zap.String("payload", payload),
			zap.Error(err))
		o.countDirective(directive.KindProposeRoleChange, metrics.OutcomeError)
	}

	var rc roleChange
	if err := json.Unmarshal([]byte(payload), &rc); err != nil {
		drop("malformed", domain.NewParseError("role change proposal", err))
		return
	}
	target, ok := o.roster.Get(rc.ModelID)
	if !ok || strings.TrimSpace(rc.NewRole) == "" {
		drop("unknown model_id or empty new_role", nil)
		return
	}

	if _, err := o.store.ExpirePendingProposals(ctx, tc.conv.ID); err != nil {
		drop("expire pending", err)
		return
	}
	p := &domain.RoleProposal{
		ID:              domain.NewID("prop"),
		ConversationID:  tc.conv.ID,
		ProposerID:      tc.speaker.ID,
		ParticipantID:   target.ID,
		ParticipantName: target.Name,
		NewRole:         strings.TrimSpace(rc.NewRole),
		Justification:   rc.Justification,
		Status:          domain.ProposalStatusPending,
		CreatedAt:       time.Now(),
	}
	if err := o.store.CreateProposal(ctx, p); err != nil {
		drop("store", err)
		return
	}
	o.publish(domain.NewEvent(domain.EventTypeProposalCreated, tc.conv.ID, p))
	o.countDirective(directive.KindProposeRoleChange, metrics.OutcomeOK)
}

func (o *Orchestrator) countDirective(kind directive.Kind, outcome string) {
	o.metrics.Directives.WithLabelValues(string(kind), outcome).Inc()
}

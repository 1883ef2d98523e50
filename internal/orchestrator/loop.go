package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
)

func (o *Orchestrator) run(ctx context.Context, l *loop) {
	defer o.wg.Done()
	defer close(l.done)
	defer o.finishLoop(l)

	log := o.logger.With(zap.String("conversation_id", l.convID))
	turns := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conv, err := o.store.GetConversation(ctx, l.convID)
		if err != nil || conv == nil {
			if ctx.Err() == nil {
				log.Error("failed to load conversation", zap.Error(err))
				o.complete(l, "conversation unavailable", "")
			}
			return
		}
		history, err := o.store.ListMessages(ctx, l.convID, 0)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("failed to load messages", zap.Error(err))
				o.complete(l, "history unavailable", "")
			}
			return
		}

		groupID := l.group()
		speakerID := PolicyFor(conv.TurnPolicy).Next(conv, history, groupID)
		if speakerID == "" {
			if o.complete(l, "every participant answered", groupID) {
				return
			}
			turns = 0
			continue
		}
		speaker, ok := o.roster.Get(speakerID)
		if !ok {
			log.Error("active participant missing from roster", zap.String("participant", speakerID))
			o.complete(l, "unknown participant", "")
			return
		}

		o.publish(domain.NewEvent(domain.EventTypeSpeakerChanged, l.convID, domain.SpeakerPayload{ParticipantID: speaker.ID}))
		yield := o.takeTurn(ctx, l, conv, speaker, history, groupID)
		turns++
		if ctx.Err() != nil {
			return
		}
		if yield || (o.opts.MaxTurnsPerRun > 0 && turns >= o.opts.MaxTurnsPerRun) {
			reason := "yielded"
			if !yield {
				reason = "turn limit reached"
			}
			if o.complete(l, reason, groupID) {
				return
			}
			// A newer human message arrived during the turn.
			turns = 0
		}

		timer := time.NewTimer(o.opts.TurnDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) finishLoop(l *loop) {
	o.mu.Lock()
	if o.loops[l.convID] == l {
		delete(o.loops, l.convID)
		delete(o.caches, l.convID)
	}
	o.mu.Unlock()
	o.metrics.RunningLoops.Dec()
}

// complete marks a run YIELDED and schedules memory extraction. It does
// nothing once the loop was stopped. When groupID is set and Start moved the
// loop to a newer prompt group since, the run goes on and complete reports
// false.
func (o *Orchestrator) complete(l *loop, reason, groupID string) bool {
	ctx := context.Background()
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return true
	}
	if groupID != "" && l.groupID != groupID {
		l.mu.Unlock()
		return false
	}
	l.stopped = true
	if err := o.store.UpdateLoopState(ctx, l.convID, domain.LoopStateYielded); err != nil {
		o.logger.Error("failed to update loop state", zap.String("conversation_id", l.convID), zap.Error(err))
	}
	o.publish(domain.NewEvent(domain.EventTypeLoopState, l.convID, domain.LoopStatePayload{State: domain.LoopStateYielded, Reason: reason}))
	o.publish(domain.NewEvent(domain.EventTypeSpeakerChanged, l.convID, domain.SpeakerPayload{}))
	l.mu.Unlock()

	o.scheduleExtraction(ctx, l.convID)
	return true
}

// scheduleExtraction queues conversation-end memory extraction for every
// active participant.
func (o *Orchestrator) scheduleExtraction(ctx context.Context, conversationID string) {
	if o.tasks == nil || o.memory == nil {
		return
	}
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		return
	}
	for _, pid := range conv.ActiveParticipants {
		pid := pid
		o.tasks.Submit("memory_extraction", o.opts.ExtractionDelay, func(ctx context.Context) error {
			msgs, err := o.store.ListMessages(ctx, conversationID, 0)
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", err)
			}
			if _, err := o.memory.ProcessConversationEnd(ctx, conversationID, pid, msgs); err != nil {
				return err
			}
			o.InvalidateMemory(conversationID, pid)
			return nil
		})
	}
}

// takeTurn runs one participant turn, including its tool sub-turns, and
// reports whether the participant yielded.
func (o *Orchestrator) takeTurn(ctx context.Context, l *loop, conv *domain.Conversation, speaker domain.Participant, history []domain.Message, groupID string) bool {
	start := time.Now()
	log := o.logger.With(zap.String("conversation_id", conv.ID), zap.String("participant", speaker.ID))
	tc := &turnContext{loop: l, conv: conv, speaker: speaker, cache: o.cacheFor(conv.ID)}

	in, err := o.promptInput(ctx, tc, history, groupID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Error("failed to prepare prompt", zap.Error(err))
		o.failTurn(ctx, tc, groupID, start, err)
		return true
	}

	parentID := ""
	if n := len(history); n > 0 {
		parentID = history[n-1].ID
	}

	for sub := 0; ; sub++ {
		forcePlain := sub >= o.opts.MaxToolCalls
		if forcePlain {
			in.Tools = nil
		}
		callStart := time.Now()
		res, err := o.callLLM(ctx, "completion", &llm.InvokeRequest{Prompt: o.composer.Compose(in), Model: speaker.Model})
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			log.Warn("turn failed", zap.Error(err))
			o.failTurn(ctx, tc, groupID, start, err)
			return true
		}

		yield := strings.Contains(res.Text, "[YIELD]")
		thought, text := extractThoughts(res.Text)
		text = o.applyDirectives(ctx, tc, text)
		elapsed := time.Since(callStart).Milliseconds()

		calls, isToolCall := parseToolCalls(text)
		if !isToolCall || forcePlain {
			if text != "" || thought != "" {
				msg := o.newMessage(conv.ID, domain.MessageRoleAI, text, speaker.ID, groupID)
				msg.ParentMessageID = parentID
				msg.ResponseTimeMs = elapsed
				msg.ThoughtProcess = thought
				if err := o.persist(ctx, tc, msg); err != nil {
					return true
				}
			}
			o.observeTurn(speaker.ID, metrics.OutcomeOK, start)
			return yield
		}

		callsJSON, _ := json.Marshal(calls)
		using := o.newMessage(conv.ID, domain.MessageRoleAI, speaker.Name+" is using a tool...", speaker.ID, groupID)
		using.ToolCalls = callsJSON
		using.ParentMessageID = parentID
		using.ResponseTimeMs = elapsed
		using.ThoughtProcess = thought
		if err := o.persist(ctx, tc, using); err != nil {
			return true
		}
		in.History = append(in.History, *using)

		toolMsg, ok := o.dispatchTool(ctx, tc, calls[0], groupID, using.ID)
		if !ok {
			o.observeTurn(speaker.ID, metrics.OutcomeOK, start)
			return yield
		}
		if toolMsg == nil {
			return true
		}
		in.History = append(in.History, *toolMsg)
		in.FirstResponse = false
	}
}

// dispatchTool runs the first requested call and persists its result. ok is
// false when the tool is unavailable, which ends the turn. A nil message with
// ok true means the loop was stopped.
func (o *Orchestrator) dispatchTool(ctx context.Context, tc *turnContext, call domain.ToolCall, groupID, parentID string) (*domain.Message, bool) {
	var bound *BoundTool
	var err error
	if o.tools != nil {
		bound, err = o.tools.Resolve(ctx, tc.speaker.ID, call.Name)
	} else {
		err = domain.NewNotFoundError("tool", call.Name)
	}
	if err != nil {
		o.logger.Warn("tool unavailable",
			zap.String("conversation_id", tc.conv.ID),
			zap.String("participant", tc.speaker.ID),
			zap.String("tool", call.Name),
			zap.Error(err))
		msg := o.newMessage(tc.conv.ID, domain.MessageRoleAI,
			fmt.Sprintf("I tried to use a tool called %q but I couldn't find its configuration or it's not available for me. Please ensure it's set up correctly.", call.Name),
			tc.speaker.ID, groupID)
		msg.ParentMessageID = parentID
		_ = o.persist(ctx, tc, msg)
		return nil, false
	}

	var content string
	data, err := o.tools.Execute(ctx, tc.conv.ID, tc.speaker.ID, bound, call.Arguments)
	if err != nil {
		content = fmt.Sprintf("Error executing tool %s: %s", call.Name, err.Error())
	} else {
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		body, _ := json.Marshal(struct {
			ToolName string          `json:"tool_name"`
			Result   json.RawMessage `json:"result"`
		}{call.Name, data})
		content = string(body)
	}

	msg := o.newMessage(tc.conv.ID, domain.MessageRoleTool, content, tc.speaker.ID, groupID)
	msg.ToolName = call.Name
	msg.ParentMessageID = parentID
	if err := o.persist(ctx, tc, msg); err != nil {
		return nil, true
	}
	return msg, true
}

// failTurn persists the error reply that ends a failed turn.
func (o *Orchestrator) failTurn(ctx context.Context, tc *turnContext, groupID string, start time.Time, err error) {
	outcome := metrics.OutcomeError
	if domain.IsKind(err, domain.ErrorKindTimedOut) {
		outcome = metrics.OutcomeTimeout
	}
	o.observeTurn(tc.speaker.ID, outcome, start)
	msg := o.newMessage(tc.conv.ID, domain.MessageRoleAI,
		fmt.Sprintf("I'm having trouble responding right now (%s). Please try again.", err.Error()),
		tc.speaker.ID, groupID)
	_ = o.persist(ctx, tc, msg)
}

func (o *Orchestrator) observeTurn(participantID, outcome string, start time.Time) {
	o.metrics.Turns.WithLabelValues(participantID, outcome).Inc()
	o.metrics.TurnDuration.Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) newMessage(conversationID string, role domain.MessageRole, content, participantID, groupID string) *domain.Message {
	return &domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ParticipantID:  participantID,
		PromptGroupID:  groupID,
		CreatedAt:      time.Now(),
	}
}

// persist stores a reply unless the loop has been stopped.
func (o *Orchestrator) persist(ctx context.Context, tc *turnContext, msg *domain.Message) error {
	if msg.ParticipantID != "" && !tc.conv.HasParticipant(msg.ParticipantID) {
		return domain.NewValidationError("participant %s is not active in %s", msg.ParticipantID, tc.conv.ID)
	}

	tc.loop.mu.Lock()
	defer tc.loop.mu.Unlock()
	if tc.loop.stopped {
		return errDiscarded
	}
	// The write must land even if Stop cancels ctx right after the check above.
	storeCtx := context.WithoutCancel(ctx)
	if err := o.store.CreateMessage(storeCtx, msg); err != nil {
		o.logger.Error("failed to persist message", zap.String("conversation_id", tc.conv.ID), zap.Error(err))
		return fmt.Errorf("failed to create message: %w", err)
	}
	if err := o.store.TouchConversation(storeCtx, tc.conv.ID, msg.CreatedAt); err != nil {
		o.logger.Warn("failed to touch conversation", zap.String("conversation_id", tc.conv.ID), zap.Error(err))
	}
	o.publish(domain.NewEvent(domain.EventTypeMessageCreated, tc.conv.ID, msg))
	return nil
}

// promptInput gathers everything the composer needs for one turn.
func (o *Orchestrator) promptInput(ctx context.Context, tc *turnContext, history []domain.Message, groupID string) (PromptInput, error) {
	conv, speaker := tc.conv, tc.speaker
	in := PromptInput{
		Participant:   speaker,
		Role:          conv.RoleFor(speaker.ID),
		History:       history,
		FirstResponse: firstResponse(history, groupID),
		Roster:        o.roster,
	}
	for _, id := range conv.ActiveParticipants {
		in.Others = append(in.Others, o.roster.NameOf(id))
	}

	if o.memory != nil {
		query := lastHumanText(history)
		memCtx, err := tc.cache.Get(ctx, speaker.ID, func(ctx context.Context) (string, error) {
			return o.memory.EnhancedContext(ctx, speaker.ID, query, o.opts.MemoryTopK)
		})
		if err != nil {
			o.logger.Warn("memory retrieval failed",
				zap.String("conversation_id", conv.ID),
				zap.String("participant", speaker.ID),
				zap.Error(err))
		}
		in.MemoryContext = memCtx
	}

	var err error
	if groupID != "" {
		if in.Attachments, err = o.store.ListMessageFiles(ctx, groupID); err != nil {
			return in, fmt.Errorf("failed to list attachments: %w", err)
		}
	}
	if in.Repository, err = o.store.ListFiles(ctx, conv.ID); err != nil {
		return in, fmt.Errorf("failed to list files: %w", err)
	}
	if in.Canvas, err = o.store.GetCanvas(ctx, conv.ID); err != nil {
		return in, fmt.Errorf("failed to get canvas: %w", err)
	}
	if o.tools != nil {
		if in.Tools, err = o.tools.Descriptors(ctx, speaker.ID); err != nil {
			return in, err
		}
	}
	return in, nil
}

func lastHumanText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.MessageRoleHuman {
			return history[i].Content
		}
	}
	return ""
}


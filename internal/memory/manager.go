package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
)

// Importance bounds and the default applied when none is given.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// Importance of memories extracted at the end of a conversation.
const (
	factImportance       = 7
	preferenceImportance = 8
	insightImportance    = 6
	researchImportance   = 7
)

// Options configures a Manager.
type Options struct {
	// ScanLimit is how many of the most important memories are scored per query.
	ScanLimit int
	// ExtractionModel overrides the completion model for summaries and imports.
	ExtractionModel string
}

// Manager stores, scores and extracts participant memories.
type Manager struct {
	store    store.Store
	llm      llm.LLMClient
	embedder Embedder
	opts     Options
	now      func() time.Time
}

// NewManager creates a memory manager.
func NewManager(st store.Store, client llm.LLMClient, embedder Embedder, opts Options) *Manager {
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = 100
	}
	return &Manager{store: st, llm: client, embedder: embedder, opts: opts, now: time.Now}
}

// ClampImportance bounds a score to [MinImportance, MaxImportance]; zero means default.
func ClampImportance(score float64) float64 {
	switch {
	case score == 0:
		return DefaultImportance
	case score < MinImportance:
		return MinImportance
	case score > MaxImportance:
		return MaxImportance
	}
	return score
}

// Store embeds and persists one memory for a participant.
func (m *Manager) Store(ctx context.Context, participantID string, req *domain.CreateMemoryRequest) (*domain.MemoryRecord, error) {
	if participantID == "" {
		return nil, domain.NewValidationError("participant_id is required")
	}
	if !req.MemoryType.Valid() {
		return nil, domain.NewValidationError("invalid memory_type %q", req.MemoryType)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.NewValidationError("content is required")
	}

	embedding, err := m.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, domain.NewRemoteCallError("embedding", err)
	}

	key := req.Key
	if key == "" {
		key = string(req.MemoryType) + "_" + domain.NewULID()
	}
	rec := &domain.MemoryRecord{
		ID:              domain.NewID("mem"),
		ParticipantID:   participantID,
		MemoryType:      req.MemoryType,
		Key:             key,
		Content:         req.Content,
		Context:         req.Context,
		ImportanceScore: ClampImportance(req.ImportanceScore),
		Embedding:       embedding,
		CreatedAt:       m.now(),
	}
	if err := m.store.CreateMemory(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create memory: %w", err)
	}
	return rec, nil
}

// StoreResearch persists the result of a knowledge-gap lookup as a factual memory.
func (m *Manager) StoreResearch(ctx context.Context, participantID, query, research string) (*domain.MemoryRecord, error) {
	return m.Store(ctx, participantID, &domain.CreateMemoryRequest{
		MemoryType:      domain.MemoryTypeFactual,
		Key:             "research_" + domain.NewULID(),
		Content:         research,
		Context:         "Auto-researched based on knowledge gap: " + query,
		ImportanceScore: researchImportance,
	})
}

// Retrieve scores the participant's most important memories against query and
// returns the k best, bumping their access counters.
func (m *Manager) Retrieve(ctx context.Context, participantID, query string, k int) ([]domain.ScoredMemory, error) {
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewRemoteCallError("embedding", err)
	}

	memories, err := m.store.ListMemoriesByImportance(ctx, participantID, m.opts.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	scored := make([]domain.ScoredMemory, len(memories))
	for i, mem := range memories {
		scored[i] = domain.ScoredMemory{Memory: mem, Similarity: CosineSimilarity(queryVec, mem.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}

	if len(scored) > 0 {
		now := m.now()
		ids := make([]string, len(scored))
		for i := range scored {
			ids[i] = scored[i].Memory.ID
			scored[i].Memory.AccessCount++
			scored[i].Memory.LastAccessed = &now
		}
		if err := m.store.TouchMemories(ctx, ids, now); err != nil {
			return nil, fmt.Errorf("failed to touch memories: %w", err)
		}
	}
	return scored, nil
}

// EnhancedContext renders the k most relevant memories as a prompt section.
// It returns an empty string when the participant has no memories.
func (m *Manager) EnhancedContext(ctx context.Context, participantID, query string, k int) (string, error) {
	memories, err := m.Retrieve(ctx, participantID, query, k)
	if err != nil {
		return "", err
	}
	return FormatMemories(memories), nil
}

// FormatMemories renders memories as a numbered prompt section.
func FormatMemories(memories []domain.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nRelevant memories from previous conversations:\n")
	for i, sm := range memories {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, sm.Memory.MemoryType, sm.Memory.Content)
	}
	return b.String()
}

type conversationAnalysis struct {
	Summary         string   `json:"summary"`
	KeyInsights     []string `json:"key_insights"`
	LearnedFacts    []string `json:"learned_facts"`
	UserPreferences []string `json:"user_preferences"`
	FollowUpTopics  []string `json:"follow_up_topics"`
}

var analysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"summary":          map[string]interface{}{"type": "string"},
		"key_insights":     stringArray,
		"learned_facts":    stringArray,
		"user_preferences": stringArray,
		"follow_up_topics": stringArray,
	},
}

var stringArray = map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}

// ProcessConversationEnd summarises a finished conversation for one
// participant and stores what it learned as individual memories.
func (m *Manager) ProcessConversationEnd(ctx context.Context, conversationID, participantID string, messages []domain.Message) (*domain.ConversationSummary, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	res, err := m.llm.Invoke(ctx, &llm.InvokeRequest{
		Prompt:         buildAnalysisPrompt(messages),
		Model:          m.opts.ExtractionModel,
		ResponseSchema: analysisSchema,
	})
	if err != nil {
		return nil, err
	}

	var analysis conversationAnalysis
	if err := json.Unmarshal(res.JSON(), &analysis); err != nil {
		return nil, domain.NewParseError("conversation analysis", err)
	}

	summary := &domain.ConversationSummary{
		ID:              domain.NewID("sum"),
		ConversationID:  conversationID,
		ParticipantID:   participantID,
		Summary:         analysis.Summary,
		KeyInsights:     analysis.KeyInsights,
		LearnedFacts:    analysis.LearnedFacts,
		UserPreferences: analysis.UserPreferences,
		FollowUpTopics:  analysis.FollowUpTopics,
		CreatedAt:       m.now(),
	}
	if err := m.store.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to create summary: %w", err)
	}

	extracted := []struct {
		items      []string
		memType    domain.MemoryType
		keyPrefix  string
		context    string
		importance float64
	}{
		{analysis.LearnedFacts, domain.MemoryTypeFactual, "fact_", "Learned from conversation ", factImportance},
		{analysis.UserPreferences, domain.MemoryTypePreference, "pref_", "User preference from conversation ", preferenceImportance},
		{analysis.KeyInsights, domain.MemoryTypeSkill, "insight_", "Insight from conversation ", insightImportance},
	}
	for _, group := range extracted {
		for _, item := range group.items {
			if strings.TrimSpace(item) == "" {
				continue
			}
			_, err := m.Store(ctx, participantID, &domain.CreateMemoryRequest{
				MemoryType:      group.memType,
				Key:             group.keyPrefix + domain.NewULID(),
				Content:         item,
				Context:         group.context + conversationID,
				ImportanceScore: group.importance,
			})
			if err != nil {
				zap.S().Warnw("failed to store extracted memory",
					"conversation_id", conversationID, "participant", participantID, "error", err)
			}
		}
	}
	return summary, nil
}

func buildAnalysisPrompt(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == domain.MessageRoleHuman:
			lines = append(lines, "Human: "+msg.Content)
		case msg.ParticipantID != "":
			lines = append(lines, msg.ParticipantID+": "+msg.Content)
		default:
			lines = append(lines, msg.Content)
		}
	}

	return `Analyze this conversation and extract key learnings for future reference.

Conversation:
` + strings.Join(lines, "\n\n") + `

Please provide:
1. A concise summary of the conversation
2. Key insights discovered
3. New factual information learned
4. User preferences observed
5. Potential follow-up topics

Format as JSON with the keys: summary, key_insights, learned_facts, user_preferences, follow_up_topics`
}

type importedMemories struct {
	Memories []struct {
		MemoryType      domain.MemoryType `json:"memory_type"`
		Key             string            `json:"key"`
		Content         string            `json:"content"`
		Context         string            `json:"context"`
		ImportanceScore float64           `json:"importance_score"`
	} `json:"memories"`
}

var importSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"memories": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"memory_type":      map[string]interface{}{"type": "string", "enum": []string{"factual", "preference", "skill", "conversational"}},
					"key":              map[string]interface{}{"type": "string"},
					"content":          map[string]interface{}{"type": "string"},
					"context":          map[string]interface{}{"type": "string"},
					"importance_score": map[string]interface{}{"type": "number", "minimum": 1, "maximum": 10},
				},
				"required": []string{"memory_type", "key", "content", "importance_score"},
			},
		},
	},
}

// ImportDocument asks the model to extract memories from an uploaded
// conversation export and stores every valid one for the participant.
func (m *Manager) ImportDocument(ctx context.Context, participantID string, req *domain.ImportDocumentRequest) ([]domain.MemoryRecord, error) {
	if req.FileURL == "" {
		return nil, domain.NewValidationError("file_url is required")
	}

	prompt := fmt.Sprintf(`Analyze the content of the attached file %q, which contains conversation history with an AI. Extract key memories and structure them into a JSON array. Focus on:

- Factual information the user shared about themselves, their work, or interests
- User preferences for communication style, topics, or approaches
- Important skills, knowledge areas, or expertise the user demonstrated
- Recurring themes or patterns in conversations
- Personal details that would help maintain conversational continuity

For each memory, assign an importance score from 1-10 based on how valuable it would be for future conversations.`, req.FileName)

	res, err := m.llm.Invoke(ctx, &llm.InvokeRequest{
		Prompt:         prompt,
		Model:          m.opts.ExtractionModel,
		ResponseSchema: importSchema,
		FileURLs:       []string{req.FileURL},
	})
	if err != nil {
		return nil, err
	}

	var parsed importedMemories
	if err := json.Unmarshal(res.JSON(), &parsed); err != nil {
		return nil, domain.NewParseError("imported memories", err)
	}

	stored := make([]domain.MemoryRecord, 0, len(parsed.Memories))
	for _, mem := range parsed.Memories {
		memCtx := mem.Context
		if memCtx == "" {
			memCtx = "Extracted from " + req.FileName
		}
		rec, err := m.Store(ctx, participantID, &domain.CreateMemoryRequest{
			MemoryType:      mem.MemoryType,
			Key:             mem.Key,
			Content:         mem.Content,
			Context:         memCtx,
			ImportanceScore: mem.ImportanceScore,
		})
		if err != nil {
			zap.S().Warnw("skipping imported memory", "participant", participantID, "key", mem.Key, "error", err)
			continue
		}
		stored = append(stored, *rec)
	}
	return stored, nil
}

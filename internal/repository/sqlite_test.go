package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seedConversation(t *testing.T, store *SQLiteStore, id string) *domain.Conversation {
	t.Helper()
	now := time.Now()
	conv := &domain.Conversation{
		ID:                 id,
		Title:              domain.DefaultConversationTitle,
		AgentRoles:         map[string]string{"gpt-4": "Lead"},
		ActiveParticipants: []string{"gpt-4", "claude-3"},
		TurnPolicy:         domain.TurnPolicyCyclic,
		LoopState:          domain.LoopStateIdle,
		LastActivity:       now,
		CreatedAt:          now,
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestSQLiteStoreConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seedConversation(t, store, "c1")

	got, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil || got.AgentRoles["gpt-4"] != "Lead" || len(got.ActiveParticipants) != 2 {
		t.Fatalf("unexpected conversation: %+v", got)
	}

	got.Title = "Renamed"
	got.Pinned = true
	if err := store.UpdateConversation(ctx, got); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}
	if err := store.UpdateLoopState(ctx, "c1", domain.LoopStateRunning); err != nil {
		t.Fatalf("UpdateLoopState failed: %v", err)
	}
	got, _ = store.GetConversation(ctx, "c1")
	if got.Title != "Renamed" || !got.Pinned || got.LoopState != domain.LoopStateRunning {
		t.Fatalf("unexpected conversation after update: %+v", got)
	}

	missing, err := store.GetConversation(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil for missing conversation, got %+v, %v", missing, err)
	}
}

func TestSQLiteStoreListConversationsOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	old := seedConversation(t, store, "old")
	seedConversation(t, store, "new")
	archived := seedConversation(t, store, "archived")

	old.Pinned = true
	old.LastActivity = time.Now().Add(-time.Hour)
	if err := store.UpdateConversation(ctx, old); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}
	archived.Archived = true
	if err := store.UpdateConversation(ctx, archived); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}

	convs, err := store.ListConversations(ctx, ConversationFilter{})
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != "old" || convs[1].ID != "new" {
		t.Fatalf("unexpected order: %+v", convs)
	}

	all, _ := store.ListConversations(ctx, ConversationFilter{IncludeArchived: true})
	if len(all) != 3 {
		t.Fatalf("expected 3 conversations including archived, got %d", len(all))
	}
}

func TestSQLiteStoreMessagesWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedConversation(t, store, "c1")

	base := time.Now()
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		msg := &domain.Message{
			ID:             id,
			ConversationID: "c1",
			Role:           domain.MessageRoleAI,
			Content:        "reply " + id,
			ParticipantID:  "gpt-4",
			ToolCalls:      json.RawMessage(`[{"name":"search"}]`),
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	last2, err := store.ListMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(last2) != 2 || last2[0].ID != "m3" || last2[1].ID != "m4" {
		t.Fatalf("unexpected window: %+v", last2)
	}
	if string(last2[0].ToolCalls) != `[{"name":"search"}]` {
		t.Fatalf("tool calls not preserved: %s", last2[0].ToolCalls)
	}

	all, _ := store.ListMessages(ctx, "c1", 0)
	if len(all) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(all))
	}

	n, err := store.CountMessages(ctx, "c1", domain.MessageRoleAI)
	if err != nil || n != 4 {
		t.Fatalf("CountMessages = %d, %v", n, err)
	}
}

func TestSQLiteStoreMessageRequiresConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.CreateMessage(context.Background(), &domain.Message{
		ID: "m1", ConversationID: "ghost", Role: domain.MessageRoleHuman, Content: "hi", CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

func TestSQLiteStoreCanvasVersioning(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedConversation(t, store, "c1")

	first, err := store.SaveCanvas(ctx, &domain.CodeCanvas{ID: "cv1", ConversationID: "c1", Content: "a", UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("SaveCanvas failed: %v", err)
	}
	if first.Version != 1 || first.Language != domain.DefaultCanvasLanguage || first.Title != domain.DefaultCanvasTitle {
		t.Fatalf("unexpected first canvas: %+v", first)
	}

	second, err := store.SaveCanvas(ctx, &domain.CodeCanvas{ID: "ignored", ConversationID: "c1", Content: "b", Language: "go", UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("SaveCanvas failed: %v", err)
	}
	if second.Version != 2 || second.Content != "b" || second.Language != "go" || second.ID != "cv1" {
		t.Fatalf("unexpected second canvas: %+v", second)
	}

	third, _ := store.SaveCanvas(ctx, &domain.CodeCanvas{ConversationID: "c1", Content: "c", UpdatedAt: time.Now()})
	if third.Version != 3 || third.Language != "go" {
		t.Fatalf("unexpected third canvas: %+v", third)
	}
}

func TestSQLiteStoreMemories(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	for i, score := range []float64{3, 9, 6} {
		mem := &domain.MemoryRecord{
			ID:              []string{"a", "b", "c"}[i],
			ParticipantID:   "gpt-4",
			MemoryType:      domain.MemoryTypeFactual,
			Key:             "k",
			Content:         "fact",
			ImportanceScore: score,
			Embedding:       []float64{0.1, 0.2},
			CreatedAt:       time.Now(),
		}
		if err := store.CreateMemory(ctx, mem); err != nil {
			t.Fatalf("CreateMemory failed: %v", err)
		}
	}

	top, err := store.ListMemoriesByImportance(ctx, "gpt-4", 2)
	if err != nil {
		t.Fatalf("ListMemoriesByImportance failed: %v", err)
	}
	if len(top) != 2 || top[0].ID != "b" || top[1].ID != "c" {
		t.Fatalf("unexpected importance order: %+v", top)
	}
	if len(top[0].Embedding) != 2 {
		t.Fatalf("embedding not decoded: %+v", top[0])
	}

	if err := store.TouchMemories(ctx, []string{"a", "b"}, time.Now()); err != nil {
		t.Fatalf("TouchMemories failed: %v", err)
	}
	all, _ := store.ListMemories(ctx, "gpt-4", 0)
	touched := 0
	for _, m := range all {
		if m.AccessCount == 1 && m.LastAccessed != nil {
			touched++
		}
	}
	if touched != 2 {
		t.Fatalf("expected 2 touched memories, got %d", touched)
	}
}

func TestSQLiteStoreProposalTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedConversation(t, store, "c1")

	p := &domain.RoleProposal{
		ID: "p1", ConversationID: "c1", ParticipantID: "gpt-4", NewRole: "Lead",
		Status: domain.ProposalStatusPending, CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.CreateProposal(ctx, p); err != nil {
		t.Fatalf("CreateProposal failed: %v", err)
	}

	stale, err := store.ListStaleProposals(ctx, time.Now().Add(-time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("ListStaleProposals = %+v, %v", stale, err)
	}

	ok, err := store.TransitionProposal(ctx, "p1", domain.ProposalStatusPending, domain.ProposalStatusApproved)
	if err != nil || !ok {
		t.Fatalf("TransitionProposal = %v, %v", ok, err)
	}
	ok, _ = store.TransitionProposal(ctx, "p1", domain.ProposalStatusPending, domain.ProposalStatusDenied)
	if ok {
		t.Fatalf("second transition from PENDING should not apply")
	}
	got, _ := store.GetProposal(ctx, "p1")
	if got.Status != domain.ProposalStatusApproved || got.DecidedAt == nil {
		t.Fatalf("unexpected proposal: %+v", got)
	}
}

func TestSQLiteStoreToolsAndFolders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	cfg := &domain.ToolConfig{ID: "t1", Name: "weather", BaseURL: "http://x", AuthType: domain.AuthTypeBearer,
		AuthToken: "secret", CommonHeaders: map[string]string{"X-App": "rt"}}
	if err := store.CreateToolConfig(ctx, cfg); err != nil {
		t.Fatalf("CreateToolConfig failed: %v", err)
	}
	schema := &domain.ToolSchema{ID: "s1", ToolName: "forecast", ParticipantID: "gpt-4", ToolConfigID: "t1",
		EndpointPath: "/forecast", HTTPMethod: "GET", ParametersSchema: json.RawMessage(`{"city":"string"}`), Enabled: true}
	if err := store.CreateToolSchema(ctx, schema); err != nil {
		t.Fatalf("CreateToolSchema failed: %v", err)
	}

	found, err := store.FindToolSchema(ctx, "gpt-4", "forecast")
	if err != nil || found == nil || found.ToolConfigID != "t1" {
		t.Fatalf("FindToolSchema = %+v, %v", found, err)
	}
	if other, _ := store.FindToolSchema(ctx, "claude-3", "forecast"); other != nil {
		t.Fatalf("schema should be scoped to its participant")
	}
	gotCfg, _ := store.GetToolConfig(ctx, "t1")
	if gotCfg.CommonHeaders["X-App"] != "rt" {
		t.Fatalf("headers not decoded: %+v", gotCfg)
	}

	if err := store.DeleteToolConfig(ctx, "t1"); err != nil {
		t.Fatalf("DeleteToolConfig failed: %v", err)
	}
	if left, _ := store.ListToolSchemas(ctx, ""); len(left) != 0 {
		t.Fatalf("expected schemas removed with config, got %d", len(left))
	}

	if err := store.CreateFolder(ctx, &domain.Folder{ID: "f1", Name: "Work", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	conv := seedConversation(t, store, "c1")
	conv.FolderID = "f1"
	if err := store.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}
	if err := store.DeleteFolder(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	got, _ := store.GetConversation(ctx, "c1")
	if got.FolderID != "" {
		t.Fatalf("expected folder cleared, got %q", got.FolderID)
	}
}

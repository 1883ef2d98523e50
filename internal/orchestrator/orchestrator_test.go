package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/tasks"
	"github.com/xiaot623/gogo/roundtable/internal/toolproxy"
	"github.com/xiaot623/gogo/roundtable/tests/helpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/valyala/fasthttp.(*Client).mCleaner"),
		goleak.IgnoreAnyFunction("github.com/valyala/fasthttp.(*HostClient).connsCleaner"),
		goleak.IgnoreTopFunction("github.com/valyala/fasthttp.(*TCPDialer).tcpAddrsClean"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) has(t domain.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

type harness struct {
	orch  *Orchestrator
	store *store.SQLiteStore
	mock  *llm.MockClient
	pub   *recorder
	conv  *domain.Conversation
}

func newHarness(t *testing.T, opts Options, deps Deps, participants ...string) *harness {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	mock := llm.NewMockClient()
	pub := &recorder{}
	conv := helpers.SeedConversation(t, st, "conv_1", participants...)

	deps.Store = st
	deps.LLM = mock
	deps.Memory = memory.NewManager(st, mock, memory.HashEmbedder{}, memory.Options{})
	deps.Publisher = pub
	deps.Roster = testRoster
	if deps.Tools == nil {
		deps.Tools = NewToolRunner(st, toolproxy.New(toolproxy.Options{Timeout: 2 * time.Second, RatePerSec: 100, RateBurst: 10}), nil, nil)
	}
	return &harness{orch: New(deps, opts), store: st, mock: mock, pub: pub, conv: conv}
}

func (h *harness) send(t *testing.T, content string) string {
	t.Helper()
	id := domain.NewMessageID()
	err := h.store.CreateMessage(context.Background(), &domain.Message{
		ID:             id,
		ConversationID: h.conv.ID,
		Role:           domain.MessageRoleHuman,
		Content:        content,
		PromptGroupID:  id,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	return id
}

func (h *harness) runToEnd(t *testing.T, groupID string) {
	t.Helper()
	require.NoError(t, h.orch.Start(context.Background(), h.conv.ID, groupID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Wait(ctx, h.conv.ID))
}

func (h *harness) aiMessages(t *testing.T) []domain.Message {
	t.Helper()
	msgs, err := h.store.ListMessages(context.Background(), h.conv.ID, 0)
	require.NoError(t, err)
	var out []domain.Message
	for _, m := range msgs {
		if m.Role != domain.MessageRoleHuman {
			out = append(out, m)
		}
	}
	return out
}

func (h *harness) state(t *testing.T) domain.LoopState {
	t.Helper()
	s, err := h.orch.State(context.Background(), h.conv.ID)
	require.NoError(t, err)
	return s
}

func TestCyclicRunUntilYield(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3", "gemini-pro")
	group := h.send(t, "Let's design a cache.")
	h.runToEnd(t, group)

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 4)
	var speakers []string
	for _, m := range msgs {
		speakers = append(speakers, m.ParticipantID)
		assert.Equal(t, group, m.PromptGroupID)
	}
	assert.Equal(t, []string{"gpt-4", "claude-3", "gemini-pro", "gpt-4"}, speakers)
	assert.Equal(t, "[MOCK] GPT-4 has nothing to add.", msgs[3].Content)
	assert.Equal(t, domain.LoopStateYielded, h.state(t))
	assert.True(t, h.pub.has(domain.EventTypeSpeakerChanged))
	assert.True(t, h.pub.has(domain.EventTypeMessageCreated))
	assert.False(t, h.orch.Running(h.conv.ID))
}

func TestAllOnceRun(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3", "gemini-pro")
	h.conv.TurnPolicy = domain.TurnPolicyAllOnce
	require.NoError(t, h.store.UpdateConversation(context.Background(), h.conv))

	h.runToEnd(t, h.send(t, "Quick poll: tabs or spaces?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "gemini-pro", msgs[2].ParticipantID)
	assert.Equal(t, domain.LoopStateYielded, h.state(t))
}

func TestFirstResponseWording(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3")
	h.mock.Enqueue("first", "second [YIELD]")
	h.runToEnd(t, h.send(t, "hello"))

	calls := h.mock.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Prompt, "Please provide your initial analysis and perspective.")
	assert.Contains(t, calls[1].Prompt, "Please read the entire conversation")
	assert.Equal(t, "claude-3", calls[1].Model)
}

func TestStopDiscardsLateResponse(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3")
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.mock.Handler = func(ctx context.Context, req *llm.InvokeRequest) (*llm.InvokeResult, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return &llm.InvokeResult{Text: "a reply nobody should see"}, nil
	}

	require.NoError(t, h.orch.Start(context.Background(), h.conv.ID, h.send(t, "go")))
	<-started
	require.NoError(t, h.orch.Stop(context.Background(), h.conv.ID))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Wait(ctx, h.conv.ID))

	assert.Empty(t, h.aiMessages(t))
	assert.Equal(t, domain.LoopStateStopped, h.state(t))
}

func TestMessageDuringYieldingTurnIsAnswered(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	h.mock.Handler = func(ctx context.Context, req *llm.InvokeRequest) (*llm.InvokeResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return &llm.InvokeResult{Text: "done here [YIELD]"}, nil
		}
		return &llm.InvokeResult{Text: "answering the follow-up [YIELD]"}, nil
	}

	first := h.send(t, "first question")
	require.NoError(t, h.orch.Start(context.Background(), h.conv.ID, first))
	<-started
	second := h.send(t, "one more thing")
	require.NoError(t, h.orch.Start(context.Background(), h.conv.ID, second))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Wait(ctx, h.conv.ID))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[0].PromptGroupID)
	assert.Equal(t, "done here", msgs[0].Content)
	assert.Equal(t, second, msgs[1].PromptGroupID)
	assert.Equal(t, "answering the follow-up", msgs[1].Content)
	assert.Equal(t, domain.LoopStateYielded, h.state(t))
	assert.False(t, h.orch.Running(h.conv.ID))
}

func TestTurnTimeoutYieldsWithErrorMessage(t *testing.T) {
	h := newHarness(t, Options{LLMTimeout: 30 * time.Millisecond}, Deps{}, "gpt-4", "claude-3")
	h.mock.Handler = func(ctx context.Context, req *llm.InvokeRequest) (*llm.InvokeResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h.runToEnd(t, h.send(t, "slow question"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "I'm having trouble responding right now ("))
	assert.Equal(t, "gpt-4", msgs[0].ParticipantID)
	assert.Equal(t, domain.LoopStateYielded, h.state(t))
}

func TestRemoteErrorMessage(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.mock.EnqueueError(errors.New("upstream 500"))
	h.runToEnd(t, h.send(t, "hi"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "I'm having trouble responding right now (upstream 500). Please try again.", msgs[0].Content)
}

func TestThoughtsAreExtracted(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.mock.Enqueue("<think>weigh options</think>Use a B-tree.<think>done</think> [YIELD]")
	h.runToEnd(t, h.send(t, "index?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Use a B-tree.", msgs[0].Content)
	assert.Equal(t, "weigh options\n\ndone", msgs[0].ThoughtProcess)
}

func TestDirectiveSideEffects(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3")
	h.mock.Enqueue(
		`Plan: [KNOWLEDGE_GAP: raft elections] [GENERATE_IMAGE: a raft] [DISAGREE: too slow] `+
			`[UPDATE_CANVAS: fmt.Println(1)] [PROPOSE_ROLE_CHANGE: {"model_id": "claude-3", "new_role": "Architect", "justification": "design [work]"}] [YIELD]`,
		"Raft uses randomized election timeouts.",
	)
	h.runToEnd(t, h.send(t, "consensus?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	content := msgs[0].Content
	assert.Contains(t, content, `(Research completed for "raft elections")`)
	assert.Contains(t, content, "\n\n![Generated Image](https://mock.local/images/1.png)\n*Generated: a raft*\n")
	assert.Contains(t, content, "(Disagreed: too slow)")
	assert.Contains(t, content, "[Code Canvas Updated/Created with new code.]")
	assert.NotContains(t, content, "PROPOSE_ROLE_CHANGE")
	assert.NotContains(t, content, "[YIELD]")

	ctx := context.Background()
	canvas, err := h.store.GetCanvas(ctx, h.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, canvas)
	assert.Equal(t, "fmt.Println(1)", canvas.Content)
	assert.Equal(t, 1, canvas.Version)

	props, err := h.store.ListProposals(ctx, h.conv.ID, domain.ProposalStatusPending)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "claude-3", props[0].ParticipantID)
	assert.Equal(t, "gpt-4", props[0].ProposerID)
	assert.Equal(t, "design [work]", props[0].Justification)

	mems, err := h.store.ListMemories(ctx, "gpt-4", 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.True(t, strings.HasPrefix(mems[0].Key, "research_"))
	assert.Equal(t, "Auto-researched based on knowledge gap: raft elections", mems[0].Context)

	assert.True(t, h.pub.has(domain.EventTypeCanvasUpdated))
	assert.True(t, h.pub.has(domain.EventTypeProposalCreated))

	research := h.mock.Calls()[1]
	assert.True(t, research.AllowInternetContext)
	assert.Equal(t, "Research and provide detailed information about: raft elections", research.Prompt)
}

func TestResearchIsSharedWithLaterSpeakers(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3")
	h.mock.Enqueue("[KNOWLEDGE_GAP: sqlite wal]", "WAL allows concurrent readers.", "ok [YIELD]")
	h.runToEnd(t, h.send(t, "durability?"))

	calls := h.mock.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[2].Prompt, `Knowledge Gap Research for "sqlite wal": WAL allows concurrent readers.`)
}

func TestResearchWithoutMemoryManager(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.orch.memory = nil
	h.mock.Enqueue("[KNOWLEDGE_GAP: raft] [YIELD]", "Raft elects a leader.")
	h.runToEnd(t, h.send(t, "consensus?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, `(Research completed for "raft")`, msgs[0].Content)

	mems, err := h.store.ListMemories(context.Background(), "gpt-4", 0)
	require.NoError(t, err)
	assert.Empty(t, mems)
}

func TestCacheIsDroppedWhenLoopEnds(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.runToEnd(t, h.send(t, "hello"))

	h.orch.mu.Lock()
	_, cached := h.orch.caches[h.conv.ID]
	h.orch.mu.Unlock()
	assert.False(t, cached)

	h.orch.cacheFor(h.conv.ID).AddResearch("q", "a")
	h.orch.DropCache(h.conv.ID)
	h.orch.mu.Lock()
	_, cached = h.orch.caches[h.conv.ID]
	h.orch.mu.Unlock()
	assert.False(t, cached)
}

func TestFailedDirectivesLeaveMarkers(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.mock.ImageErr = errors.New("quota")
	h.mock.Enqueue("[GENERATE_IMAGE: a graph] [KNOWLEDGE_GAP: x] [YIELD]")
	h.mock.EnqueueError(errors.New("offline"))
	h.runToEnd(t, h.send(t, "draw"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "[Image generation failed: a graph] [Knowledge gap research failed: x]", msgs[0].Content)
}

func TestMalformedProposalIsDropped(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.mock.Enqueue(`[PROPOSE_ROLE_CHANGE: {not json}] ok [PROPOSE_ROLE_CHANGE: {"model_id": "nobody", "new_role": "x"}] [YIELD]`)
	h.runToEnd(t, h.send(t, "roles?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok [PROPOSE_ROLE_CHANGE: {\"model_id\": \"nobody\", \"new_role\": \"x\"}]", msgs[0].Content)

	props, err := h.store.ListProposals(context.Background(), h.conv.ID, "")
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestNewProposalExpiresPending(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4", "claude-3")
	h.mock.Enqueue(
		`[PROPOSE_ROLE_CHANGE: {"model_id": "gpt-4", "new_role": "Reviewer"}]`,
		`[PROPOSE_ROLE_CHANGE: {"model_id": "claude-3", "new_role": "Tester"}] [YIELD]`,
	)
	h.runToEnd(t, h.send(t, "reorganize"))

	ctx := context.Background()
	pending, err := h.store.ListProposals(ctx, h.conv.ID, domain.ProposalStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Tester", pending[0].NewRole)

	expired, err := h.store.ListProposals(ctx, h.conv.ID, domain.ProposalStatusExpired)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "Reviewer", expired[0].NewRole)
}

func seedWeatherTool(t *testing.T, st store.Store, baseURL string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateToolConfig(ctx, &domain.ToolConfig{
		ID: "tcfg_1", Name: "weather api", BaseURL: baseURL, AuthType: domain.AuthTypeNone,
	}))
	require.NoError(t, st.CreateToolSchema(ctx, &domain.ToolSchema{
		ID: "tschema_1", ToolName: "weather", ParticipantID: "gpt-4", ToolConfigID: "tcfg_1",
		Description: "Current weather", EndpointPath: "/weather", HTTPMethod: "GET",
		ParametersSchema: []byte(`{"city":"string"}`), Enabled: true,
	}))
}

func TestToolSubTurnsAreCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lisbon", r.URL.Query().Get("city"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temp":21}`))
	}))
	defer srv.Close()

	h := newHarness(t, Options{MaxToolCalls: 2}, Deps{}, "gpt-4")
	seedWeatherTool(t, h.store, srv.URL)
	h.mock.Handler = func(ctx context.Context, req *llm.InvokeRequest) (*llm.InvokeResult, error) {
		if strings.Contains(req.Prompt, "- Tool: weather") {
			return &llm.InvokeResult{Text: `{"tool_calls": [{"name": "weather", "arguments": {"city": "Lisbon"}}]}`}, nil
		}
		return &llm.InvokeResult{Text: "It is 21 degrees in Lisbon. [YIELD]"}, nil
	}
	h.runToEnd(t, h.send(t, "weather in Lisbon?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 5)
	for i := 0; i < 2; i++ {
		using, result := msgs[2*i], msgs[2*i+1]
		assert.Equal(t, "GPT-4 is using a tool...", using.Content)
		assert.JSONEq(t, `[{"name":"weather","arguments":{"city":"Lisbon"}}]`, string(using.ToolCalls))
		assert.Equal(t, domain.MessageRoleTool, result.Role)
		assert.Equal(t, "weather", result.ToolName)
		assert.JSONEq(t, `{"tool_name":"weather","result":{"temp":21}}`, result.Content)
	}
	assert.Equal(t, "It is 21 degrees in Lisbon.", msgs[4].Content)

	calls := h.mock.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[1].Prompt, `Tool (weather): {"tool_name":"weather","result":{"temp":21}}`)
	assert.NotContains(t, calls[2].Prompt, "- Tool: weather")
}

func TestToolErrorIsReportedToParticipant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	seedWeatherTool(t, h.store, srv.URL)
	h.mock.Enqueue(`{"tool_calls": [{"name": "weather", "arguments": {"city": "Oslo"}}]}`, "Sorry, the weather service is down. [YIELD]")
	h.runToEnd(t, h.send(t, "weather in Oslo?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error executing tool weather: "))
	assert.Contains(t, msgs[1].Content, "status: 500")
}

func TestUnavailableToolEndsTurn(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	h.mock.Enqueue(`{"tool_calls": [{"name": "stocks", "arguments": {}}]} [YIELD]`)
	h.runToEnd(t, h.send(t, "price?"))

	msgs := h.aiMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "GPT-4 is using a tool...", msgs[0].Content)
	assert.Equal(t,
		`I tried to use a tool called "stocks" but I couldn't find its configuration or it's not available for me. Please ensure it's set up correctly.`,
		msgs[1].Content)
	assert.Equal(t, domain.LoopStateYielded, h.state(t))
}

func TestMemoryExtractionAfterRun(t *testing.T) {
	q := tasks.NewQueue(tasks.Options{Workers: 1})
	defer q.Close()

	h := newHarness(t, Options{}, Deps{Tasks: q}, "gpt-4", "claude-3")
	h.mock.Enqueue("one", "two [YIELD]")
	h.runToEnd(t, h.send(t, "summarise"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	summaries, err := h.store.ListSummaries(context.Background(), h.conv.ID)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, Options{}, Deps{}, "gpt-4")
	err := h.orch.Start(context.Background(), "conv_missing", "g")
	assert.True(t, domain.IsKind(err, domain.ErrorKindNotFound))

	err = h.orch.Stop(context.Background(), "conv_missing")
	assert.True(t, domain.IsKind(err, domain.ErrorKindNotFound))

	helpers.SeedConversation(t, h.store, "conv_empty")
	err = h.orch.Start(context.Background(), "conv_empty", "g")
	assert.True(t, domain.IsKind(err, domain.ErrorKindValidation))
}

func TestShutdownStopsLoops(t *testing.T) {
	h := newHarness(t, Options{TurnDelay: time.Hour}, Deps{}, "gpt-4", "claude-3")
	require.NoError(t, h.orch.Start(context.Background(), h.conv.ID, h.send(t, "hi")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool { return len(h.mock.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.orch.Shutdown(ctx))

	assert.Equal(t, domain.LoopStateStopped, h.state(t))
	assert.Error(t, h.orch.Start(context.Background(), h.conv.ID, "again"))
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/config"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	"github.com/xiaot623/gogo/roundtable/internal/orchestrator"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/service"
	httpserver "github.com/xiaot623/gogo/roundtable/internal/transport/http"
	"github.com/xiaot623/gogo/roundtable/internal/transport/rpc"
	"github.com/xiaot623/gogo/roundtable/tests/helpers"
)

type cliEnv struct {
	httpURL string
	rpcAddr string
	db      *store.SQLiteStore
	svc     *service.Service
	orch    *orchestrator.Orchestrator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	mock := llm.NewMockClient()
	cfg := &config.Config{Participants: config.DefaultRoster, MemoryTopK: 3, ProposalTTL: time.Minute}
	mem := memory.NewManager(db, mock, nil, memory.Options{})
	tools := orchestrator.NewToolRunner(db, nil, nil, nil)
	orch := orchestrator.New(orchestrator.Deps{Store: db, LLM: mock, Memory: mem, Tools: tools, Roster: cfg.Participants}, orchestrator.Options{})
	svc := service.New(db, mock, mem, orch, tools, nil, cfg, nil)

	ts := httptest.NewServer(httpserver.NewServer(svc, nil, nil))

	srv, err := rpc.NewServer(svc, nil)
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start("127.0.0.1:0") }()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr, err := srv.Addr(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = orch.Shutdown(context.Background())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(shutdownCtx))
		assert.NoError(t, <-errCh)
		ts.Close()
	})
	return &cliEnv{httpURL: ts.URL, rpcAddr: addr.String(), db: db, svc: svc, orch: orch}
}

func (env *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(&out)
	argv := append([]string{"roundtable", "--server", env.httpURL, "--rpc", env.rpcAddr}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func (env *cliEnv) wait(t *testing.T, conversationID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.orch.Wait(ctx, conversationID))
}

func (env *cliEnv) create(t *testing.T, args ...string) domain.Conversation {
	t.Helper()
	out, err := env.run(t, append([]string{"conversations", "create"}, args...)...)
	require.NoError(t, err)
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &conv), out)
	return conv
}

func TestConversationsCreateAndList(t *testing.T) {
	env := newCLIEnv(t)

	conv := env.create(t, "--title", "Design review", "--participants", "gpt-4, claude-3", "--policy", "all_once")
	assert.Equal(t, "Design review", conv.Title)
	assert.Equal(t, []string{"gpt-4", "claude-3"}, conv.ActiveParticipants)
	assert.Equal(t, domain.TurnPolicyAllOnce, conv.TurnPolicy)

	out, err := env.run(t, "conversations", "list")
	require.NoError(t, err)
	var convs []domain.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &convs), out)
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)
}

func TestCreateRejectsUnknownPolicy(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "conversations", "create", "--policy", "random")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSendStateAndTranscript(t *testing.T) {
	env := newCLIEnv(t)
	conv := env.create(t, "--participants", "gpt-4")

	out, err := env.run(t, "send", conv.ID, "Which", "database?")
	require.NoError(t, err)
	var sent domain.SendMessageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &sent), out)
	require.NotNil(t, sent.Message)
	assert.Equal(t, "Which database?", sent.Message.Content)
	env.wait(t, conv.ID)

	out, err = env.run(t, "state", conv.ID)
	require.NoError(t, err)
	var state rpc.StateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &state), out)
	assert.Equal(t, conv.ID, state.ConversationID)
	assert.Equal(t, domain.LoopStateYielded, state.LoopState)

	out, err = env.run(t, "transcript", conv.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Which database?"), out)
	assert.Contains(t, out, "Which database?")
}

func TestStopPersistsState(t *testing.T) {
	env := newCLIEnv(t)
	conv := env.create(t)

	out, err := env.run(t, "stop", conv.ID)
	require.NoError(t, err)
	var state rpc.StateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &state), out)
	assert.Equal(t, domain.LoopStateStopped, state.LoopState)
}

func TestSendToMissingConversation(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "send", "conv_missing", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = env.run(t, "send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation_id is required")
}

func TestProposalsListAndApprove(t *testing.T) {
	env := newCLIEnv(t)
	conv := env.create(t, "--participants", "gpt-4,claude-3")
	p := &domain.RoleProposal{
		ID:             domain.NewID("prop"),
		ConversationID: conv.ID,
		ProposerID:     "gpt-4",
		ParticipantID:  "claude-3",
		NewRole:        "Architect",
		Status:         domain.ProposalStatusPending,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, env.db.CreateProposal(context.Background(), p))

	out, err := env.run(t, "proposals", "list", conv.ID)
	require.NoError(t, err)
	var pending []domain.RoleProposal
	require.NoError(t, json.Unmarshal([]byte(out), &pending), out)
	require.Len(t, pending, 1)
	assert.Equal(t, p.ID, pending[0].ID)

	out, err = env.run(t, "proposals", "approve", p.ID)
	require.NoError(t, err)
	var decided domain.RoleProposal
	require.NoError(t, json.Unmarshal([]byte(out), &decided), out)
	assert.Equal(t, domain.ProposalStatusApproved, decided.Status)

	_, err = env.run(t, "proposals", "deny", p.ID)
	require.Error(t, err)
}

func TestRolesNegotiateAndAnalytics(t *testing.T) {
	env := newCLIEnv(t)
	conv := env.create(t, "--participants", "gpt-4,claude-3")

	// The mock answers "{}" to structured prompts, so roles fall back to the defaults.
	out, err := env.run(t, "roles", "negotiate", conv.ID, "--prompt", "Build a landing page", "--apply")
	require.NoError(t, err)
	var team domain.TeamFormation
	require.NoError(t, json.Unmarshal([]byte(out), &team), out)
	assert.True(t, team.Fallback)
	assert.True(t, team.Applied)
	require.Len(t, team.Roles, 2)
	assert.Equal(t, "Project Manager", team.Roles[0].Role)
	assert.Equal(t, "Lead Developer", team.Roles[1].Role)

	got, err := env.svc.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"gpt-4": "Project Manager", "claude-3": "Lead Developer"}, got.AgentRoles)

	_, err = env.run(t, "roles", "negotiate", conv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	out, err = env.run(t, "analytics")
	require.NoError(t, err)
	var report domain.Analytics
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, 1, report.TotalConversations)
	assert.Len(t, report.Daily, 7)
}

func TestCanvasRaw(t *testing.T) {
	env := newCLIEnv(t)
	conv := env.create(t)

	_, err := env.run(t, "canvas", conv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canvas not found")

	_, err = env.svc.SaveCanvas(context.Background(), conv.ID, domain.SaveCanvasRequest{Content: "package main", Language: "go"})
	require.NoError(t, err)

	out, err := env.run(t, "canvas", "--raw", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", out)
}

func TestPrintEvent(t *testing.T) {
	tests := []struct {
		name string
		evt  domain.Event
		want string
		done bool
	}{
		{
			name: "ai message",
			evt: domain.NewEvent(domain.EventTypeMessageCreated, "c1", domain.Message{
				Role: domain.MessageRoleAI, ParticipantID: "gpt-4", Content: "Postgres.",
			}),
			want: "[gpt-4] Postgres.\n",
		},
		{
			name: "human message",
			evt:  domain.NewEvent(domain.EventTypeMessageCreated, "c1", domain.Message{Role: domain.MessageRoleHuman, Content: "hi"}),
			want: "[human] hi\n",
		},
		{
			name: "typing",
			evt:  domain.NewEvent(domain.EventTypeSpeakerChanged, "c1", domain.SpeakerPayload{ParticipantID: "claude-3"}),
			want: "-- claude-3 is typing\n",
		},
		{
			name: "speaker cleared",
			evt:  domain.NewEvent(domain.EventTypeSpeakerChanged, "c1", domain.SpeakerPayload{}),
			want: "",
		},
		{
			name: "running",
			evt:  domain.NewEvent(domain.EventTypeLoopState, "c1", domain.LoopStatePayload{State: domain.LoopStateRunning}),
			want: "-- loop RUNNING \n",
		},
		{
			name: "yielded",
			evt:  domain.NewEvent(domain.EventTypeLoopState, "c1", domain.LoopStatePayload{State: domain.LoopStateYielded, Reason: "all yielded"}),
			want: "-- loop YIELDED all yielded\n",
			done: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.evt)
			require.NoError(t, err)
			var buf bytes.Buffer
			done, err := printEvent(&buf, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, tt.done, done)
		})
	}

	var buf bytes.Buffer
	_, err := printEvent(&buf, []byte(`{"type":"error","code":"INVALID_MESSAGE","message":"bad"}`))
	require.NoError(t, err)
	assert.Equal(t, "!! INVALID_MESSAGE: bad\n", buf.String())

	_, err = printEvent(&buf, []byte("not json"))
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b ,"))
	assert.Nil(t, splitList(""))
	assert.Equal(t, "q3.pdf", fileNameOf("https://files.example.com/u/q3.pdf?sig=1"))

	c := newAPIClient("https://api.example.com/")
	u, err := c.wsURL("conv_1")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/v1/ws?conversation_id=conv_1", u)
}

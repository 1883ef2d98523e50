package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/tasks"
)

// Publisher receives conversation events for live subscribers.
type Publisher interface {
	Publish(evt domain.Event)
}

// Deps are the collaborators of an Orchestrator. Memory, Tools, Tasks,
// Publisher, Metrics and Logger are optional.
type Deps struct {
	Store     store.Store
	LLM       llm.LLMClient
	Memory    *memory.Manager
	Tools     *ToolRunner
	Tasks     *tasks.Queue
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Roster    domain.Roster
}

// Options tunes the loop.
type Options struct {
	TurnDelay        time.Duration
	LLMTimeout       time.Duration
	HistoryWindow    int
	MaxToolCalls     int
	MaxTurnsPerRun   int
	MemoryTopK       int
	MemoryCacheTTL   time.Duration
	ExtractionDelay  time.Duration
	RepoPreviewChars int
	RepoPreviewMax   int
	ResearchModel    string
}

func (o *Options) setDefaults() {
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = 60 * time.Second
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 10
	}
	if o.MaxToolCalls <= 0 {
		o.MaxToolCalls = 3
	}
	if o.MemoryTopK <= 0 {
		o.MemoryTopK = 3
	}
	if o.MemoryCacheTTL <= 0 {
		o.MemoryCacheTTL = 30 * time.Second
	}
	if o.RepoPreviewChars <= 0 {
		o.RepoPreviewChars = 500
	}
	if o.RepoPreviewMax <= 0 {
		o.RepoPreviewMax = 1000
	}
}

var (
	errShutdown  = errors.New("orchestrator is shut down")
	errDiscarded = errors.New("loop stopped, response discarded")
)

// Orchestrator runs at most one turn loop per conversation.
type Orchestrator struct {
	store    store.Store
	llm      llm.LLMClient
	memory   *memory.Manager
	tools    *ToolRunner
	tasks    *tasks.Queue
	pub      Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	roster   domain.Roster
	composer *Composer
	opts     Options

	mu     sync.Mutex
	loops  map[string]*loop
	caches map[string]*memory.ContextCache
	closed bool
	wg     sync.WaitGroup
}

// loop is one running pass over a conversation. stopped and groupID are
// guarded by mu, which is also held while a reply is persisted so that Stop
// and persistence never interleave.
type loop struct {
	convID string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	groupID string
	stopped bool
}

func (l *loop) group() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groupID
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	opts.setDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Orchestrator{
		store:    deps.Store,
		llm:      deps.LLM,
		memory:   deps.Memory,
		tools:    deps.Tools,
		tasks:    deps.Tasks,
		pub:      deps.Publisher,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		roster:   deps.Roster,
		composer: NewComposer(opts.HistoryWindow, opts.RepoPreviewChars, opts.RepoPreviewMax),
		opts:     opts,
		loops:    make(map[string]*loop),
		caches:   make(map[string]*memory.ContextCache),
	}
}

// Roster returns the configured participants.
func (o *Orchestrator) Roster() domain.Roster {
	return o.roster
}

// Start runs the loop of a conversation for the prompt group groupID. If the
// loop is already running, the next turn picks up the new group instead.
func (o *Orchestrator) Start(ctx context.Context, conversationID, groupID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return domain.NewNotFoundError("conversation", conversationID)
	}
	if len(conv.ActiveParticipants) == 0 {
		return domain.NewValidationError("conversation %s has no active participants", conversationID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errShutdown
	}
	if l, ok := o.loops[conversationID]; ok {
		l.mu.Lock()
		running := !l.stopped
		if running {
			l.groupID = groupID
		}
		l.mu.Unlock()
		if running {
			return nil
		}
	}

	if err := o.store.UpdateLoopState(ctx, conversationID, domain.LoopStateRunning); err != nil {
		return fmt.Errorf("failed to update loop state: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	l := &loop{convID: conversationID, groupID: groupID, cancel: cancel, done: make(chan struct{})}
	o.loops[conversationID] = l
	if _, ok := o.caches[conversationID]; !ok {
		o.caches[conversationID] = memory.NewContextCache(o.opts.MemoryCacheTTL)
	}
	o.metrics.RunningLoops.Inc()
	o.publish(domain.NewEvent(domain.EventTypeLoopState, conversationID, domain.LoopStatePayload{State: domain.LoopStateRunning}))

	o.wg.Add(1)
	go o.run(runCtx, l)
	return nil
}

// Stop halts the loop immediately. A reply still in flight is discarded.
func (o *Orchestrator) Stop(ctx context.Context, conversationID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return domain.NewNotFoundError("conversation", conversationID)
	}

	o.mu.Lock()
	l := o.loops[conversationID]
	o.mu.Unlock()
	return o.stopLoop(ctx, conversationID, l, "stopped by user")
}

func (o *Orchestrator) stopLoop(ctx context.Context, conversationID string, l *loop, reason string) error {
	if l != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.stopped = true
		l.cancel()
	}
	if err := o.store.UpdateLoopState(ctx, conversationID, domain.LoopStateStopped); err != nil {
		return fmt.Errorf("failed to update loop state: %w", err)
	}
	o.publish(domain.NewEvent(domain.EventTypeLoopState, conversationID, domain.LoopStatePayload{State: domain.LoopStateStopped, Reason: reason}))
	o.publish(domain.NewEvent(domain.EventTypeSpeakerChanged, conversationID, domain.SpeakerPayload{}))
	return nil
}

// State returns the persisted loop state of a conversation.
func (o *Orchestrator) State(ctx context.Context, conversationID string) (domain.LoopState, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return "", domain.NewNotFoundError("conversation", conversationID)
	}
	return conv.LoopState, nil
}

// Running reports whether a loop goroutine is active for the conversation.
func (o *Orchestrator) Running(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.loops[conversationID]
	return ok
}

// Wait blocks until the current loop of the conversation, if any, has exited.
func (o *Orchestrator) Wait(ctx context.Context, conversationID string) error {
	o.mu.Lock()
	l := o.loops[conversationID]
	o.mu.Unlock()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every loop and waits for their goroutines.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	loops := make([]*loop, 0, len(o.loops))
	for _, l := range o.loops {
		loops = append(loops, l)
	}
	o.mu.Unlock()

	for _, l := range loops {
		if err := o.stopLoop(ctx, l.convID, l, "shutdown"); err != nil {
			o.logger.Warn("failed to stop loop", zap.String("conversation_id", l.convID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InvalidateMemory drops a participant's cached memory context in a conversation.
func (o *Orchestrator) InvalidateMemory(conversationID, participantID string) {
	o.mu.Lock()
	c := o.caches[conversationID]
	o.mu.Unlock()
	if c != nil {
		c.Invalidate(participantID)
	}
}

// DropCache forgets the memory context cached for a conversation.
func (o *Orchestrator) DropCache(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.caches, conversationID)
}

func (o *Orchestrator) cacheFor(conversationID string) *memory.ContextCache {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.caches[conversationID]
	if !ok {
		c = memory.NewContextCache(o.opts.MemoryCacheTTL)
		o.caches[conversationID] = c
	}
	return c
}

func (o *Orchestrator) publish(evt domain.Event) {
	if o.pub != nil {
		o.pub.Publish(evt)
	}
}

// callLLM invokes the model with the per-call timeout. An expired call is
// reported as TimedOut.
func (o *Orchestrator) callLLM(ctx context.Context, op string, req *llm.InvokeRequest) (*llm.InvokeResult, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, o.opts.LLMTimeout)
	defer cancel()

	res, err := o.llm.Invoke(callCtx, req)
	o.metrics.ObserveRemoteCall(op, start)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrorKindTimedOut) {
			return nil, domain.NewTimedOutError(op, err)
		}
		return nil, err
	}
	return res, nil
}

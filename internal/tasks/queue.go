// Package tasks runs deferred background work on a fixed pool of workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// ErrClosed is reported by tasks that never ran because the queue closed.
var ErrClosed = errors.New("task queue closed")

// Func is the unit of work run by a Task.
type Func func(ctx context.Context) error

// Task is a handle on submitted work.
type Task struct {
	ID   string
	Name string

	fn   Func
	done chan struct{}
	err  error
}

// Done is closed once the task has finished or been abandoned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's result. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Options configures a Queue.
type Options struct {
	Workers int
	Buffer  int
	Logger  *zap.Logger
	// OnFinish, if set, is called after each task with its outcome.
	OnFinish func(name string, err error)
}

// Queue executes tasks on Workers goroutines.
type Queue struct {
	logger   *zap.Logger
	onFinish func(string, error)

	ch     chan *Task
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	// inflight counts submissions and timers that may still write to ch.
	inflight sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending int
	timers  map[*Task]*time.Timer
	waiters []chan struct{}
}

// NewQueue starts the workers.
func NewQueue(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	q := &Queue{
		logger:   opts.Logger,
		onFinish: opts.OnFinish,
		ch:       make(chan *Task, opts.Buffer),
		ctx:      egCtx,
		cancel:   cancel,
		eg:       eg,
		timers:   make(map[*Task]*time.Timer),
	}
	for i := 0; i < opts.Workers; i++ {
		eg.Go(q.worker)
	}
	return q
}

// Submit schedules fn to run after delay. The returned task is already
// finished with ErrClosed if the queue is closed.
func (q *Queue) Submit(name string, delay time.Duration, fn Func) *Task {
	t := &Task{ID: domain.NewID("task"), Name: name, fn: fn, done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.err = ErrClosed
		close(t.done)
		return t
	}
	q.pending++
	q.inflight.Add(1)
	if delay > 0 {
		q.timers[t] = time.AfterFunc(delay, func() {
			defer q.inflight.Done()
			q.mu.Lock()
			_, live := q.timers[t]
			delete(q.timers, t)
			q.mu.Unlock()
			if live {
				q.enqueue(t)
			} else {
				q.finish(t, ErrClosed)
			}
		})
		q.mu.Unlock()
		return t
	}
	q.mu.Unlock()

	q.enqueue(t)
	q.inflight.Done()
	return t
}

func (q *Queue) enqueue(t *Task) {
	select {
	case q.ch <- t:
	case <-q.ctx.Done():
		q.finish(t, ErrClosed)
	}
}

func (q *Queue) worker() error {
	for {
		select {
		case <-q.ctx.Done():
			return nil
		case t := <-q.ch:
			q.finish(t, q.run(t))
		}
	}
}

func (q *Queue) run(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(q.ctx)
}

func (q *Queue) finish(t *Task, err error) {
	t.err = err
	close(t.done)

	if err != nil {
		q.logger.Warn("background task failed",
			zap.String("task_id", t.ID), zap.String("task", t.Name), zap.Error(err))
	} else {
		q.logger.Debug("background task finished", zap.String("task_id", t.ID), zap.String("task", t.Name))
	}
	if q.onFinish != nil {
		q.onFinish(t.Name, err)
	}

	q.mu.Lock()
	q.pending--
	var waiters []chan struct{}
	if q.pending == 0 {
		waiters = q.waiters
		q.waiters = nil
	}
	q.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Pending returns the number of submitted tasks that have not finished.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Wait blocks until no task is pending, including delayed ones.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers. Delayed and queued tasks that have not started
// finish with ErrClosed; running tasks see their context cancelled.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	var abandoned []*Task
	for t, timer := range q.timers {
		if timer.Stop() {
			abandoned = append(abandoned, t)
			q.inflight.Done()
		}
		delete(q.timers, t)
	}
	q.mu.Unlock()

	q.cancel()
	err := q.eg.Wait()
	q.inflight.Wait()

	for _, t := range abandoned {
		q.finish(t, ErrClosed)
	}
	for {
		select {
		case t := <-q.ch:
			q.finish(t, ErrClosed)
		default:
			return err
		}
	}
}

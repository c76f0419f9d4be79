// Package loop implements the single-threaded event loop (§4.E): events
// are processed strictly in arrival order through reducer -> handlers ->
// executor, and the executor's own produced events re-enter the queue.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
	"github.com/zgeoff/decree/internal/engine/handlers"
	"github.com/zgeoff/decree/internal/engine/reducer"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/metrics"
)

// Executor performs the side effects a handler's commands describe. The
// loop depends only on this interface so it can be driven by a fake in
// tests.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command)
}

// Loop is the single logical worker that sequentializes events (§5
// "Scheduling model").
type Loop struct {
	store    *state.Store
	executor Executor
	handlers []handlers.Handler
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []event.Event
	wake    chan struct{}
	done    chan struct{}
}

// New constructs a Loop with an unbounded, strictly-ordered queue. now is
// injected for deterministic tests.
func New(store *state.Store, executor Executor, logger *slog.Logger, now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{
		store:    store,
		executor: executor,
		handlers: handlers.All,
		logger:   logger,
		now:      now,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue appends ev to the queue's tail and never blocks the caller
// (pollers, user actions, the executor itself emitting its own produced
// events back into the loop it is being driven by). The queue is a
// mutex-guarded slice rather than a buffered channel so that events from
// a single source can never be reordered by a full-buffer spill (§5
// "events from a single source are applied in the order emitted").
func (l *Loop) Enqueue(ev event.Event) {
	l.mu.Lock()
	l.pending = append(l.pending, ev)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest pending event, if any.
func (l *Loop) dequeue() (event.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	ev := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return ev, true
}

// DrainOnce synchronously processes every event currently queued,
// without blocking for more. Used by startup reconciliation (§4.K) to
// fold the initial poll's events into the store before Run starts
// consuming the queue in the background.
func (l *Loop) DrainOnce(ctx context.Context) {
	for {
		ev, ok := l.dequeue()
		if !ok {
			return
		}
		l.process(ctx, ev)
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		if ev, ok := l.dequeue(); ok {
			l.process(ctx, ev)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done reports when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) process(ctx context.Context, ev event.Event) {
	start := time.Now()

	snapshot := l.store.GetState()
	next := reducer.Apply(l.logger, snapshot, l.now(), ev)
	l.store.SetState(next)

	var cmds []command.Command
	for _, h := range l.handlers {
		cmds = append(cmds, h(ev, next)...)
	}

	for _, cmd := range cmds {
		l.executor.Execute(ctx, cmd)
	}

	metrics.RecordEventProcessed(string(ev.Kind()), time.Since(start))
}

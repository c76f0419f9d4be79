// Package observer adapts the state store's synchronous subscription
// fanout (§4.M) to a channel a CLI "watch" command can range over,
// without letting a slow consumer block the event loop that drives
// store.SetState.
package observer

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/state"
)

// Watcher delivers every EngineState snapshot to a bounded channel. When
// the channel is full, the oldest pending snapshot is dropped in favor
// of the newest — a slow watcher only ever sees the latest state, never
// blocks the producer.
type Watcher struct {
	store       *state.Store
	snapshots   chan *domain.EngineState
	unsubscribe func()
}

// Watch subscribes to store and returns a Watcher with a channel of
// capacity cap. Call Close when done to unsubscribe and release it.
func Watch(store *state.Store, cap int) *Watcher {
	if cap < 1 {
		cap = 1
	}
	w := &Watcher{store: store, snapshots: make(chan *domain.EngineState, cap)}
	w.unsubscribe = store.Subscribe(w.deliver)
	return w
}

func (w *Watcher) deliver(snapshot *domain.EngineState) {
	select {
	case w.snapshots <- snapshot:
	default:
		// Drop the oldest queued snapshot to make room, so the channel
		// always converges on the most recent state rather than an
		// ever-growing backlog.
		select {
		case <-w.snapshots:
		default:
		}
		select {
		case w.snapshots <- snapshot:
		default:
		}
	}
}

// Snapshots returns the channel of delivered state snapshots.
func (w *Watcher) Snapshots() <-chan *domain.EngineState {
	return w.snapshots
}

// Close unsubscribes from the store. Safe to call once.
func (w *Watcher) Close() {
	w.unsubscribe()
}

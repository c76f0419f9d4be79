package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// OrphanRecovery enforces invariant I2: a work item cannot sit in
// in-progress without a matching active agent run. Whenever a work item
// is observed entering in-progress with no active run backing it, it is
// pushed back to pending so the Implementation handler can re-dispatch
// it.
func OrphanRecovery(ev event.Event, state *domain.EngineState) []command.Command {
	if ev.Kind() != event.KindWorkItemChanged {
		return nil
	}
	e := ev.(event.WorkItemChanged)
	if e.NewStatus != domain.StatusInProgress {
		return nil
	}
	if state.ActiveRunForWorkItem(e.ID) != nil {
		return nil
	}
	return []command.Command{command.TransitionWorkItem{WorkItemID: e.ID, NewStatus: domain.StatusPending}}
}

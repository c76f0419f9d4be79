package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Readiness promotes a pending work item to ready once every blocker in
// its blockedBy list exists in the store with a terminal status.
func Readiness(ev event.Event, state *domain.EngineState) []command.Command {
	if ev.Kind() != event.KindWorkItemChanged {
		return nil
	}
	e := ev.(event.WorkItemChanged)
	if e.NewStatus != domain.StatusPending {
		return nil
	}
	if !state.BlockersResolved(e.BlockedBy) {
		return nil
	}
	return []command.Command{command.TransitionWorkItem{WorkItemID: e.ID, NewStatus: domain.StatusReady}}
}

package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// DependencyResolution promotes every pending, now-unblocked dependent of
// a work item that just became closed or approved.
func DependencyResolution(ev event.Event, state *domain.EngineState) []command.Command {
	if ev.Kind() != event.KindWorkItemChanged {
		return nil
	}
	e := ev.(event.WorkItemChanged)
	if e.NewStatus != domain.StatusClosed && e.NewStatus != domain.StatusApproved {
		return nil
	}

	var cmds []command.Command
	for _, dep := range state.Dependents(e.ID) {
		if dep.Status != domain.StatusPending {
			continue
		}
		if !state.BlockersResolved(dep.BlockedBy) {
			continue
		}
		cmds = append(cmds, command.TransitionWorkItem{WorkItemID: dep.ID, NewStatus: domain.StatusReady})
	}
	return cmds
}

package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Implementation drives a work item from ready to in-progress via the
// implementor agent, then applies the agent's result or, on failure,
// moves the work item back to pending. It never moves a work item to
// review.
func Implementation(ev event.Event, state *domain.EngineState) []command.Command {
	switch ev.Kind() {
	case event.KindWorkItemChanged:
		e := ev.(event.WorkItemChanged)
		if e.NewStatus != domain.StatusReady {
			return nil
		}
		return []command.Command{command.RequestImplementorRun{WorkItemID: e.ID}}

	case event.KindImplementorRequested:
		e := ev.(event.Requested)
		return []command.Command{command.TransitionWorkItem{WorkItemID: e.WorkItemID, NewStatus: domain.StatusInProgress}}

	case event.KindImplementorCompleted:
		e := ev.(event.ImplementorCompleted)
		return []command.Command{command.ApplyImplementorResult{
			SessionID:  e.SessionID,
			WorkItemID: e.WorkItemID,
			Outcome:    e.Outcome,
			Summary:    e.Summary,
			Patch:      e.Patch,
		}}

	case event.KindImplementorFailed:
		e := ev.(event.Failed)
		run, ok := state.AgentRuns[e.SessionID]
		if !ok {
			return nil
		}
		return []command.Command{command.TransitionWorkItem{WorkItemID: run.WorkItemID, NewStatus: domain.StatusPending}}

	default:
		return nil
	}
}

package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Planning requests a planner run whenever an approved spec's blob SHA
// moves past what the planner was last run against, and re-requests a
// follow-up run after a planner completion if any approved spec still
// needs planning (e.g. one changed again while the run was in flight).
func Planning(ev event.Event, state *domain.EngineState) []command.Command {
	switch ev.Kind() {
	case event.KindSpecChanged:
		e := ev.(event.SpecChanged)
		spec, ok := state.Specs[e.FilePath]
		if !ok || spec.FrontmatterStatus != domain.SpecApproved {
			return nil
		}
		if spec.BlobSHA == state.LastPlannedSHAs[e.FilePath] {
			return nil
		}
		return []command.Command{command.RequestPlannerRun{SpecPaths: state.ApprovedSpecPaths()}}

	case event.KindPlannerCompleted:
		e := ev.(event.PlannerCompleted)
		cmds := []command.Command{applyPlannerResultFor(e)}
		// lastPlannedSHAs has already advanced for e.SpecPaths by the time
		// handlers run (the reducer applies before handlers per §4.E), so
		// needsPlanning only reflects specs that changed again meanwhile.
		if pending := needsPlanning(state); len(pending) > 0 {
			cmds = append(cmds, command.RequestPlannerRun{SpecPaths: pending})
		}
		return cmds

	default:
		return nil
	}
}

func needsPlanning(state *domain.EngineState) []string {
	var pending []string
	for path, spec := range state.Specs {
		if spec.FrontmatterStatus != domain.SpecApproved {
			continue
		}
		if spec.BlobSHA != state.LastPlannedSHAs[path] {
			pending = append(pending, path)
		}
	}
	if pending == nil {
		return nil
	}
	// Deterministic ordering.
	for i := 1; i < len(pending); i++ {
		for j := i; j > 0 && pending[j-1] > pending[j]; j-- {
			pending[j-1], pending[j] = pending[j], pending[j-1]
		}
	}
	return pending
}

func applyPlannerResultFor(e event.PlannerCompleted) command.Command {
	create := make([]command.PlannerCreate, len(e.Create))
	for i, c := range e.Create {
		create[i] = command.PlannerCreate{
			TempID:    c.TempID,
			Title:     c.Title,
			Body:      c.Body,
			Labels:    c.Labels,
			BlockedBy: c.BlockedBy,
		}
	}
	update := make([]command.PlannerUpdate, len(e.Update))
	for i, u := range e.Update {
		update[i] = command.PlannerUpdate{WorkItemID: u.WorkItemID, Body: u.Body, Labels: u.Labels}
	}
	return command.ApplyPlannerResult{
		SessionID: e.SessionID,
		Create:    create,
		Close:     e.Close,
		Update:    update,
	}
}

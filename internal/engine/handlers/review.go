package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Review drives a work item in "review" status through the reviewer
// agent once its linked revision's pipeline succeeds, and applies the
// reviewer's verdict back onto the work item.
func Review(ev event.Event, state *domain.EngineState) []command.Command {
	switch ev.Kind() {
	case event.KindRevisionChanged:
		e := ev.(event.RevisionChanged)
		if e.NewPipelineStatus != domain.PipelineSuccess {
			return nil
		}
		work, ok := state.WorkItems[e.WorkItemID]
		if !ok || work.Status != domain.StatusReview {
			return nil
		}
		return []command.Command{command.RequestReviewerRun{WorkItemID: work.ID, RevisionID: e.ID}}

	case event.KindReviewerCompleted:
		e := ev.(event.ReviewerCompleted)
		comments := make([]command.ReviewComment, len(e.Comments))
		for i, c := range e.Comments {
			comments[i] = command.ReviewComment{Path: c.Path, Line: c.Line, Body: c.Body}
		}
		return []command.Command{command.ApplyReviewerResult{
			SessionID:  e.SessionID,
			WorkItemID: e.WorkItemID,
			RevisionID: e.RevisionID,
			Verdict:    e.Verdict,
			Summary:    e.Summary,
			Comments:   comments,
		}}

	case event.KindReviewerFailed:
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

// Package reducer implements the engine's pure state-transition function:
// (state, event) -> state'.
package reducer

import (
	"log/slog"
	"time"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Apply returns the next EngineState after applying ev to state. now is
// passed in (rather than read from time.Now) so the reducer stays pure
// and deterministic for tests. logger receives a debug line per illegal
// transition (I3) — this is synchronous, non-blocking, and does not
// violate the "no suspension points" rule in the concurrency model.
func Apply(logger *slog.Logger, state *domain.EngineState, now time.Time, ev event.Event) *domain.EngineState {
	if logger == nil {
		logger = slog.Default()
	}

	switch ev.Kind() {
	case event.KindWorkItemChanged:
		e := ev.(event.WorkItemChanged)
		return applyWorkItemChanged(state, e)

	case event.KindRevisionChanged:
		e := ev.(event.RevisionChanged)
		return applyRevisionChanged(state, e)

	case event.KindSpecChanged:
		e := ev.(event.SpecChanged)
		return state.WithSpec(e.FilePath, &domain.Spec{
			FilePath:          e.FilePath,
			BlobSHA:           e.BlobSHA,
			FrontmatterStatus: e.FrontmatterStatus,
		})

	case event.KindPlannerRequested, event.KindImplementorRequested, event.KindReviewerRequested:
		e := ev.(event.Requested)
		return applyRequested(state, now, e)

	case event.KindPlannerStarted, event.KindImplementorStarted, event.KindReviewerStarted:
		e := ev.(event.Started)
		return applyStarted(logger, state, e)

	case event.KindPlannerCompleted:
		e := ev.(event.PlannerCompleted)
		return applyPlannerCompleted(logger, state, e)

	case event.KindImplementorCompleted:
		e := ev.(event.ImplementorCompleted)
		return transitionRun(logger, state, e.SessionID, domain.RunCompleted)

	case event.KindReviewerCompleted:
		e := ev.(event.ReviewerCompleted)
		return transitionRun(logger, state, e.SessionID, domain.RunCompleted)

	case event.KindPlannerFailed, event.KindImplementorFailed, event.KindReviewerFailed:
		e := ev.(event.Failed)
		return applyFailed(logger, state, e)

	case event.KindCommandRejected:
		e := ev.(event.CommandRejected)
		return state.WithError(domain.ErrorEntry{Event: "commandRejected: " + e.Command + ": " + e.Reason, Timestamp: now})

	case event.KindCommandFailed:
		e := ev.(event.CommandFailed)
		return state.WithError(domain.ErrorEntry{Event: "commandFailed: " + e.Command + ": " + e.Err, Timestamp: now})

	default:
		// User events (userRequestedImplementorRun, userCancelledRun,
		// userTransitionedStatus) do not mutate the store — only handlers
		// react to them.
		return state
	}
}

func applyWorkItemChanged(state *domain.EngineState, e event.WorkItemChanged) *domain.EngineState {
	if e.NewStatus == "" {
		return state.WithWorkItem(e.ID, nil)
	}
	return state.WithWorkItem(e.ID, &domain.WorkItem{
		ID:             e.ID,
		Title:          e.Title,
		Body:           e.Body,
		Priority:       e.Priority,
		Complexity:     e.Complexity,
		CreatedAt:      e.CreatedAt,
		Status:         e.NewStatus,
		BlockedBy:      append([]string(nil), e.BlockedBy...),
		LinkedRevision: e.LinkedRevision,
	})
}

func applyRevisionChanged(state *domain.EngineState, e event.RevisionChanged) *domain.EngineState {
	if e.Removed || e.NewPipelineStatus == "" {
		return state.WithRevision(e.ID, nil)
	}
	return state.WithRevision(e.ID, &domain.Revision{
		ID:         e.ID,
		Title:      e.Title,
		URL:        e.URL,
		HeadSHA:    e.HeadSHA,
		HeadRef:    e.HeadRef,
		Author:     e.Author,
		Body:       e.Body,
		IsDraft:    e.IsDraft,
		WorkItemID: e.WorkItemID,
		Pipeline: &domain.Pipeline{
			Status: e.NewPipelineStatus,
			URL:    e.PipelineURL,
			Reason: e.PipelineReason,
		},
		ReviewID: e.ReviewID,
	})
}

func applyRequested(state *domain.EngineState, now time.Time, e event.Requested) *domain.EngineState {
	run := &domain.AgentRun{
		Role:       e.Role,
		SessionID:  e.SessionID,
		StartedAt:  now,
		Status:     domain.RunRequested,
		SpecPaths:  append([]string(nil), e.SpecPaths...),
		WorkItemID: e.WorkItemID,
		BranchName: e.BranchName,
		RevisionID: e.RevisionID,
	}
	return state.WithAgentRun(e.SessionID, run)
}

func applyStarted(logger *slog.Logger, state *domain.EngineState, e event.Started) *domain.EngineState {
	run, ok := state.AgentRuns[e.SessionID]
	if !ok || run.Status != domain.RunRequested {
		logger.Debug("dropping illegal transition", "session", e.SessionID, "from", runStatusOrNone(run), "to", domain.RunRunning)
		return state
	}
	next := run.Clone()
	next.Status = domain.RunRunning
	next.LogFilePath = e.LogFilePath
	return state.WithAgentRun(e.SessionID, next)
}

func applyPlannerCompleted(logger *slog.Logger, state *domain.EngineState, e event.PlannerCompleted) *domain.EngineState {
	next := transitionRun(logger, state, e.SessionID, domain.RunCompleted)
	if next == state {
		return state
	}
	for _, path := range e.SpecPaths {
		if spec, ok := next.Specs[path]; ok {
			next = next.WithLastPlannedSHA(path, spec.BlobSHA)
		}
	}
	return next
}

func applyFailed(logger *slog.Logger, state *domain.EngineState, e event.Failed) *domain.EngineState {
	var target domain.AgentRunStatus
	switch e.Reason {
	case event.ReasonTimeout:
		target = domain.RunTimedOut
	case event.ReasonCancelled:
		target = domain.RunCancelled
	default:
		target = domain.RunFailed
	}
	run, ok := state.AgentRuns[e.SessionID]
	if !ok || run.Status.Terminal() {
		logger.Debug("dropping illegal transition", "session", e.SessionID, "from", runStatusOrNone(run), "to", target)
		return state
	}
	next := run.Clone()
	next.Status = target
	next.Err = e.Err
	return state.WithAgentRun(e.SessionID, next)
}

// transitionRun moves a run to a completed-family terminal state,
// dropping (with a logged debug line) if the run is missing or already
// terminal (I3).
func transitionRun(logger *slog.Logger, state *domain.EngineState, sessionID string, target domain.AgentRunStatus) *domain.EngineState {
	run, ok := state.AgentRuns[sessionID]
	if !ok || run.Status.Terminal() {
		logger.Debug("dropping illegal transition", "session", sessionID, "from", runStatusOrNone(run), "to", target)
		return state
	}
	next := run.Clone()
	next.Status = target
	return state.WithAgentRun(sessionID, next)
}

func runStatusOrNone(run *domain.AgentRun) domain.AgentRunStatus {
	if run == nil {
		return "none"
	}
	return run.Status
}

// Package executor implements the command executor (§4.D): it performs
// the side effects handlers ask for, enforcing the role-singleton
// concurrency guard and translating agent lifecycle callbacks back into
// events for the event loop.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zgeoff/decree/internal/agent"
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/metrics"
	"github.com/zgeoff/decree/internal/plannercache"
	"github.com/zgeoff/decree/internal/provider"
	"github.com/zgeoff/decree/internal/retry"
)

// Executor performs commands' side effects.
type Executor struct {
	store *state.Store

	repoRoot  string
	workItems provider.WorkItemWriter
	revisions provider.RevisionWriter
	adapter   agent.Adapter

	retryCfg retry.Config
	sleep    retry.Sleeper

	// emit re-enqueues a produced lifecycle event onto the event loop's
	// queue (§4.E step 3: "the executor's own produced events re-enter
	// the queue at its tail").
	emit func(event.Event)

	logger *slog.Logger
}

// New constructs an Executor. repoRoot locates the planner cache file
// (§4.G) that's rewritten after every completed planner run.
func New(store *state.Store, repoRoot string, workItems provider.WorkItemWriter, revisions provider.RevisionWriter, adapter agent.Adapter, emit func(event.Event), logger *slog.Logger) *Executor {
	return &Executor{
		store:     store,
		repoRoot:  repoRoot,
		workItems: workItems,
		revisions: revisions,
		adapter:   adapter,
		retryCfg:  retry.DefaultConfig(),
		sleep:     retry.RealSleeper,
		emit:      emit,
		logger:    logger,
	}
}

// Execute performs cmd's side effect. Called by the event loop for every
// command a handler produced.
func (e *Executor) Execute(ctx context.Context, cmd command.Command) {
	switch c := cmd.(type) {
	case command.CreateWorkItem:
		e.writeWorkItem(ctx, cmd, func(ctx context.Context) (string, error) {
			return e.workItems.CreateWorkItem(ctx, c.Title, c.Body, c.Labels, c.BlockedBy)
		})
	case command.UpdateWorkItem:
		e.writeVoid(ctx, cmd, func(ctx context.Context) error {
			return e.workItems.UpdateWorkItem(ctx, c.WorkItemID, c.Body, c.Labels)
		})
	case command.TransitionWorkItem:
		e.writeVoid(ctx, cmd, func(ctx context.Context) error {
			return e.workItems.TransitionStatus(ctx, c.WorkItemID, string(c.NewStatus))
		})

	case command.CreateRevisionFromPatch:
		e.writeWorkItem(ctx, cmd, func(ctx context.Context) (string, error) {
			return e.revisions.CreateRevisionFromPatch(ctx, c.WorkItemID, c.Patch, c.Title, c.Body)
		})
	case command.UpdateRevision:
		e.writeVoid(ctx, cmd, func(ctx context.Context) error {
			return e.revisions.UpdateRevision(ctx, c.RevisionID, c.Body)
		})
	case command.CommentOnRevision:
		e.writeVoid(ctx, cmd, func(ctx context.Context) error {
			return e.revisions.CommentOnRevision(ctx, c.RevisionID, c.Body)
		})
	case command.PostRevisionReview:
		e.writeWorkItem(ctx, cmd, func(ctx context.Context) (string, error) {
			return e.revisions.PostRevisionReview(ctx, c.RevisionID, c.Verdict, c.Summary, toInlineComments(c.Comments))
		})
	case command.UpdateRevisionReview:
		e.writeVoid(ctx, cmd, func(ctx context.Context) error {
			return e.revisions.UpdateRevisionReview(ctx, c.RevisionID, c.ReviewID, c.Verdict, c.Summary, toInlineComments(c.Comments))
		})

	case command.RequestPlannerRun:
		e.requestRun(ctx, domain.RolePlanner, agent.StartParams{SpecPaths: c.SpecPaths}, cmd)
	case command.RequestImplementorRun:
		e.requestRun(ctx, domain.RoleImplementor, agent.StartParams{WorkItemID: c.WorkItemID}, cmd)
	case command.RequestReviewerRun:
		e.requestRun(ctx, domain.RoleReviewer, agent.StartParams{WorkItemID: c.WorkItemID, RevisionID: c.RevisionID}, cmd)

	case command.ApplyPlannerResult:
		e.applyPlannerResult(ctx, c)
	case command.ApplyImplementorResult:
		e.applyImplementorResult(ctx, c)
	case command.ApplyReviewerResult:
		e.applyReviewerResult(ctx, c)

	case command.CancelPlannerRun:
		e.adapter.CancelAgent(c.SessionID)
	case command.CancelImplementorRun:
		e.adapter.CancelAgent(c.SessionID)
	case command.CancelReviewerRun:
		e.adapter.CancelAgent(c.SessionID)

	default:
		e.logger.Warn("executor: unknown command", "command", fmt.Sprintf("%T", cmd))
	}
}

// requestRun enforces the role-singleton concurrency guard (I1), emits
// *Requested before calling the adapter, and drives the resulting event
// stream to *Started/*Completed/*Failed.
func (e *Executor) requestRun(ctx context.Context, role domain.AgentRole, params agent.StartParams, cmd command.Command) {
	if run := e.store.GetState().ActiveRun(role); run != nil {
		e.emit(event.CommandRejected{Command: fmt.Sprintf("%T", cmd), Reason: "role already active"})
		return
	}

	sessionID := agent.NewSessionID()
	params.Role = role
	params.SessionID = sessionID

	e.emit(event.NewRequested(event.Requested{
		Role:       role,
		SessionID:  sessionID,
		SpecPaths:  params.SpecPaths,
		WorkItemID: params.WorkItemID,
		RevisionID: params.RevisionID,
	}))

	events, err := e.adapter.StartAgent(ctx, params)
	if err != nil {
		metrics.RecordAgentRun(string(role), "error", 0)
		e.emit(event.NewFailed(event.Failed{Role: role, SessionID: sessionID, Reason: event.ReasonError, Err: err.Error()}))
		return
	}

	go e.driveSession(role, sessionID, time.Now(), events)
}

func (e *Executor) driveSession(role domain.AgentRole, sessionID string, startedAt time.Time, events <-chan agent.Event) {
	for ev := range events {
		switch ev.Kind {
		case agent.EventStarted:
			e.emit(event.NewStarted(event.Started{Role: role, SessionID: sessionID, LogFilePath: ev.LogFilePath}))
		case agent.EventChunk:
			// Streamed text is for live observers only; it has no
			// engine-visible effect.
		case agent.EventResult:
			metrics.RecordAgentRun(string(role), "completed", time.Since(startedAt))
			e.emitCompleted(role, sessionID, ev.Result)
		case agent.EventFailed:
			reason := event.ReasonError
			switch ev.FailReason {
			case "timeout":
				reason = event.ReasonTimeout
			case "cancelled":
				reason = event.ReasonCancelled
			}
			errText := ""
			if ev.Err != nil {
				errText = ev.Err.Error()
			}
			metrics.RecordAgentRun(string(role), string(reason), time.Since(startedAt))
			e.emit(event.NewFailed(event.Failed{Role: role, SessionID: sessionID, Reason: reason, Err: errText}))
		}
	}
}

func (e *Executor) emitCompleted(role domain.AgentRole, sessionID string, result *agent.Result) {
	switch role {
	case domain.RolePlanner:
		create := make([]event.PlannerCreateItem, len(result.Create))
		for i, c := range result.Create {
			create[i] = event.PlannerCreateItem{TempID: c.TempID, Title: c.Title, Body: c.Body, Labels: c.Labels, BlockedBy: c.BlockedBy}
		}
		update := make([]event.PlannerUpdateItem, len(result.Update))
		for i, u := range result.Update {
			update[i] = event.PlannerUpdateItem{WorkItemID: u.WorkItemID, Body: u.Body, Labels: u.Labels}
		}
		specPaths := e.activeRunSpecPaths(sessionID)
		e.savePlannerCache(specPaths)
		e.emit(event.PlannerCompleted{SessionID: sessionID, SpecPaths: specPaths, Create: create, Close: result.Close, Update: update})

	case domain.RoleImplementor:
		workItemID := e.activeRunWorkItemID(sessionID)
		e.emit(event.ImplementorCompleted{SessionID: sessionID, WorkItemID: workItemID, Outcome: result.Outcome, Summary: result.Summary, Patch: result.Patch})

	case domain.RoleReviewer:
		run, ok := e.store.GetState().AgentRuns[sessionID]
		workItemID, revisionID := "", ""
		if ok {
			workItemID, revisionID = run.WorkItemID, run.RevisionID
		}
		comments := make([]event.ReviewComment, len(result.Comments))
		for i, c := range result.Comments {
			comments[i] = event.ReviewComment{Path: c.Path, Line: c.Line, Body: c.Body}
		}
		e.emit(event.ReviewerCompleted{SessionID: sessionID, WorkItemID: workItemID, RevisionID: revisionID, Verdict: result.Verdict, Summary: result.Summary, Comments: comments})
	}
}

func (e *Executor) activeRunSpecPaths(sessionID string) []string {
	if run, ok := e.store.GetState().AgentRuns[sessionID]; ok {
		return run.SpecPaths
	}
	return nil
}

// savePlannerCache rewrites the on-disk planner cache (§4.G) to match
// the blob SHAs the reducer is about to record for specPaths. It mirrors
// the reducer's own advancement so the file never lags the in-memory
// state the running engine just committed to. This implementation has
// no repo-wide tree or commit abstraction — specs are tracked
// individually by blob SHA (§4.F) — so treeSHA/commitSHA are written
// empty; every per-file blobSHA and frontmatterStatus is populated.
func (e *Executor) savePlannerCache(specPaths []string) {
	snapshot := e.store.GetState()
	lastPlanned := make(map[string]string, len(snapshot.LastPlannedSHAs)+len(specPaths))
	for path, sha := range snapshot.LastPlannedSHAs {
		lastPlanned[path] = sha
	}
	for _, path := range specPaths {
		if spec, ok := snapshot.Specs[path]; ok {
			lastPlanned[path] = spec.BlobSHA
		}
	}

	files := make(map[string]plannercache.FileEntry, len(lastPlanned))
	for path, sha := range lastPlanned {
		entry := plannercache.FileEntry{BlobSHA: sha}
		if spec, ok := snapshot.Specs[path]; ok {
			entry.FrontmatterStatus = string(spec.FrontmatterStatus)
		}
		files[path] = entry
	}

	if err := plannercache.Save(e.repoRoot, "", "", files); err != nil {
		e.logger.Error("executor: save planner cache", "error", err)
	}
}

func (e *Executor) activeRunWorkItemID(sessionID string) string {
	if run, ok := e.store.GetState().AgentRuns[sessionID]; ok {
		return run.WorkItemID
	}
	return ""
}

// applyPlannerResult expands the planner's structured result into
// createWorkItem/transitionWorkItemStatus/updateWorkItem writes.
func (e *Executor) applyPlannerResult(ctx context.Context, c command.ApplyPlannerResult) {
	for _, create := range c.Create {
		e.writeWorkItem(ctx, c, func(ctx context.Context) (string, error) {
			return e.workItems.CreateWorkItem(ctx, create.Title, create.Body, create.Labels, create.BlockedBy)
		})
	}
	for _, id := range c.Close {
		e.writeVoid(ctx, c, func(ctx context.Context) error {
			return e.workItems.TransitionStatus(ctx, id, string(domain.StatusClosed))
		})
	}
	for _, update := range c.Update {
		e.writeVoid(ctx, c, func(ctx context.Context) error {
			// §9 open question: a nil Body or Labels means "preserve
			// existing value, no write for that field" — UpdateWorkItem
			// already treats nil that way.
			return e.workItems.UpdateWorkItem(ctx, update.WorkItemID, update.Body, update.Labels)
		})
	}
}

// applyImplementorResult expands a completed implementor run into a
// createRevisionFromPatch write; blocked/validation-failure outcomes
// produce no provider write and leave the work item's status unchanged.
func (e *Executor) applyImplementorResult(ctx context.Context, c command.ApplyImplementorResult) {
	if c.Outcome != "completed" {
		return
	}
	w, ok := e.store.GetState().WorkItems[c.WorkItemID]
	title := c.WorkItemID
	blockedBy := []string(nil)
	if ok {
		title = w.Title
		blockedBy = w.BlockedBy
	}
	body := provider.AppendDependencyMetadata(c.Summary, blockedBy)
	e.writeWorkItem(ctx, c, func(ctx context.Context) (string, error) {
		return e.revisions.CreateRevisionFromPatch(ctx, c.WorkItemID, c.Patch, title, body)
	})
}

// applyReviewerResult expands the reviewer's verdict into a revision
// review post and the work item's resulting status transition.
func (e *Executor) applyReviewerResult(ctx context.Context, c command.ApplyReviewerResult) {
	e.writeWorkItem(ctx, c, func(ctx context.Context) (string, error) {
		return e.revisions.PostRevisionReview(ctx, c.RevisionID, c.Verdict, c.Summary, toInlineComments(c.Comments))
	})

	newStatus := domain.StatusNeedsRefinement
	if c.Verdict == "approve" {
		newStatus = domain.StatusApproved
	}
	e.writeVoid(ctx, c, func(ctx context.Context) error {
		return e.workItems.TransitionStatus(ctx, c.WorkItemID, string(newStatus))
	})
}

func toInlineComments(comments []command.ReviewComment) []provider.InlineComment {
	out := make([]provider.InlineComment, len(comments))
	for i, c := range comments {
		out[i] = provider.InlineComment{Path: c.Path, Line: c.Line, Body: c.Body}
	}
	return out
}

// writeVoid wraps a provider write with retry and emits commandFailed on
// final failure (§4.D "Failure handling").
func (e *Executor) writeVoid(ctx context.Context, cmd command.Command, op func(ctx context.Context) error) {
	name := fmt.Sprintf("%T", cmd)
	_, err := retry.Do(ctx, e.retryCfg, e.sleep, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	if err != nil {
		metrics.RecordCommandOutcome(name, "failed")
		e.emit(event.CommandFailed{Command: name, Err: err.Error()})
		return
	}
	metrics.RecordCommandOutcome(name, "succeeded")
}

// writeWorkItem is writeVoid for ops that return a new entity ID the
// caller doesn't need; errors are handled identically.
func (e *Executor) writeWorkItem(ctx context.Context, cmd command.Command, op func(ctx context.Context) (string, error)) {
	name := fmt.Sprintf("%T", cmd)
	_, err := retry.Do(ctx, e.retryCfg, e.sleep, op)
	if err != nil {
		metrics.RecordCommandOutcome(name, "failed")
		e.emit(event.CommandFailed{Command: name, Err: err.Error()})
		return
	}
	metrics.RecordCommandOutcome(name, "succeeded")
}

// Package reconciler implements the work-provider reconciler (§4.F):
// periodic pollers diffing provider-observed state against the engine's
// store and emitting change events with strong equality semantics.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zgeoff/decree/config"
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/event"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/metrics"
	"github.com/zgeoff/decree/internal/provider"
	"github.com/zgeoff/decree/internal/retry"
)

// Reconciler owns the three pollers and the scheduler driving them. The
// spec poller shares the revision poller's cadence, matching the
// specification's "two cooperating periodic scanners, both driven by the
// same scheduler tick."
type Reconciler struct {
	cfg    config.ReconcilerConfig
	store  *state.Store
	emit   func(event.Event)
	logger *slog.Logger

	workItems provider.WorkItemReader
	revisions provider.RevisionReader
	specs     provider.SpecReader

	retryCfg retry.Config
	sleep    retry.Sleeper
}

// New constructs a Reconciler.
func New(cfg config.ReconcilerConfig, store *state.Store, workItems provider.WorkItemReader, revisions provider.RevisionReader, specs provider.SpecReader, emit func(event.Event), logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:       cfg,
		store:     store,
		emit:      emit,
		logger:    logger,
		workItems: workItems,
		revisions: revisions,
		specs:     specs,
		retryCfg:  retry.DefaultConfig(),
		sleep:     retry.RealSleeper,
	}
}

// PollOnce runs every poller exactly once, concurrently, and waits for
// all to finish — used at startup so the first state is coherent before
// the event loop and scheduler start (§4.K).
func (r *Reconciler) PollOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.pollWorkItemsOnce(gctx); return nil })
	g.Go(func() error { r.pollRevisionsOnce(gctx); return nil })
	g.Go(func() error { r.pollSpecsOnce(gctx); return nil })
	return g.Wait()
}

// Run starts the three pollers on independent periodic tickers until ctx
// is cancelled. Each poller tolerates transient errors by logging and
// waiting for the next tick (§4.F).
func (r *Reconciler) Run(ctx context.Context) {
	go r.loop(ctx, r.cfg.WorkItemInterval, r.pollWorkItemsOnce)
	go r.loop(ctx, r.cfg.RevisionInterval, r.pollRevisionsOnce)
	go r.loop(ctx, r.cfg.RevisionInterval, r.pollSpecsOnce)
}

func (r *Reconciler) loop(ctx context.Context, interval time.Duration, poll func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			poll(ctx)
		}
	}
}

func (r *Reconciler) pollWorkItemsOnce(ctx context.Context) {
	start := time.Now()
	records, err := retry.Do(ctx, r.retryCfg, r.sleep, func(ctx context.Context) ([]provider.WorkItemRecord, error) {
		return r.workItems.ListWorkItems(ctx)
	})
	metrics.RecordReconcilerTick("workItems", time.Since(start), err)
	if err != nil {
		r.logger.Warn("work item poll failed", "error", err)
		return
	}

	snapshot := r.store.GetState()
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		seen[rec.ID] = true
		existing, ok := snapshot.WorkItems[rec.ID]
		changed := workItemChanged(existing, rec)
		if ok && !changed {
			continue
		}
		oldStatus := domain.WorkItemStatus("")
		if ok {
			oldStatus = existing.Status
		}
		r.emit(event.WorkItemChanged{
			ID:             rec.ID,
			OldStatus:      oldStatus,
			NewStatus:      domain.WorkItemStatus(rec.Status),
			Title:          rec.Title,
			Body:           rec.Body,
			Priority:       domain.Priority(rec.Priority),
			Complexity:     rec.Complexity,
			BlockedBy:      rec.BlockedBy,
			LinkedRevision: rec.LinkedRevision,
		})
	}

	for id, w := range snapshot.WorkItems {
		if !seen[id] {
			r.emit(event.WorkItemChanged{ID: id, OldStatus: w.Status, NewStatus: ""})
		}
	}
}

func workItemChanged(existing *domain.WorkItem, rec provider.WorkItemRecord) bool {
	if existing == nil {
		return true
	}
	if existing.Title != rec.Title ||
		string(existing.Status) != rec.Status ||
		string(existing.Priority) != rec.Priority ||
		existing.Body != rec.Body ||
		existing.LinkedRevision != rec.LinkedRevision {
		return true
	}
	return !stringSliceEqual(existing.BlockedBy, rec.BlockedBy)
}

func (r *Reconciler) pollRevisionsOnce(ctx context.Context) {
	start := time.Now()
	records, err := retry.Do(ctx, r.retryCfg, r.sleep, func(ctx context.Context) ([]provider.RevisionRecord, error) {
		return r.revisions.ListRevisions(ctx)
	})
	metrics.RecordReconcilerTick("revisions", time.Since(start), err)
	if err != nil {
		r.logger.Warn("revision poll failed", "error", err)
		return
	}

	snapshot := r.store.GetState()
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		seen[rec.ID] = true

		combined, err := r.revisions.GetCombinedStatus(ctx, rec.HeadSHA)
		if err != nil {
			r.logger.Warn("get combined status failed", "revision", rec.ID, "error", err)
			continue
		}
		checks, err := r.revisions.ListCheckRuns(ctx, rec.HeadSHA)
		if err != nil {
			r.logger.Warn("list check runs failed", "revision", rec.ID, "error", err)
			continue
		}
		pipeline := DerivePipelineStatus(combined, checks)

		workItemID := rec.WorkItemID
		if workItemID == "" {
			workItemID = provider.MatchClosingKeyword(rec.Body)
		}

		existing, ok := snapshot.Revisions[rec.ID]
		changed := revisionChanged(existing, rec, pipeline, workItemID)
		if ok && !changed {
			continue
		}
		oldStatus := domain.PipelineStatus("")
		if ok && existing.Pipeline != nil {
			oldStatus = existing.Pipeline.Status
		}

		r.emit(event.RevisionChanged{
			ID:                rec.ID,
			OldPipelineStatus: oldStatus,
			NewPipelineStatus: pipeline.Status,
			Title:             rec.Title,
			URL:               rec.URL,
			HeadSHA:           rec.HeadSHA,
			HeadRef:           rec.HeadRef,
			Author:            rec.Author,
			Body:              rec.Body,
			IsDraft:           rec.IsDraft,
			WorkItemID:        workItemID,
			PipelineURL:       pipeline.URL,
			PipelineReason:    pipeline.Reason,
			ReviewID:          rec.ReviewID,
		})
	}

	for id := range snapshot.Revisions {
		if !seen[id] {
			r.emit(event.RevisionChanged{ID: id, Removed: true})
		}
	}
}

func revisionChanged(existing *domain.Revision, rec provider.RevisionRecord, pipeline domain.Pipeline, workItemID string) bool {
	if existing == nil {
		return true
	}
	if existing.IsDraft != rec.IsDraft || existing.HeadSHA != rec.HeadSHA || existing.WorkItemID != workItemID || existing.ReviewID != rec.ReviewID {
		return true
	}
	if existing.Pipeline == nil {
		return pipeline.Status != ""
	}
	return existing.Pipeline.Status != pipeline.Status
}

func (r *Reconciler) pollSpecsOnce(ctx context.Context) {
	start := time.Now()
	records, err := retry.Do(ctx, r.retryCfg, r.sleep, func(ctx context.Context) ([]provider.SpecRecord, error) {
		return r.specs.ListSpecs(ctx)
	})
	metrics.RecordReconcilerTick("specs", time.Since(start), err)
	if err != nil {
		// Per §9's open question: an absent specs directory (or any
		// other transient listing failure) is treated as "zero specs" —
		// log and emit nothing, rather than synthesizing removals for
		// everything previously known.
		r.logger.Warn("spec poll failed", "error", err)
		return
	}

	snapshot := r.store.GetState()
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		seen[rec.FilePath] = true
		existing, ok := snapshot.Specs[rec.FilePath]
		if ok && existing.BlobSHA == rec.BlobSHA {
			continue
		}

		content, err := r.specs.GetSpecContent(ctx, rec.BlobSHA)
		if err != nil {
			r.logger.Warn("get spec content failed", "path", rec.FilePath, "error", err)
			continue
		}
		status := parseFrontmatterStatus(content)

		changeType := event.ChangeModified
		if !ok {
			changeType = event.ChangeAdded
		}
		r.emit(event.SpecChanged{
			FilePath:          rec.FilePath,
			ChangeType:        changeType,
			BlobSHA:           rec.BlobSHA,
			FrontmatterStatus: status,
		})
	}

	for path := range snapshot.Specs {
		if !seen[path] {
			r.emit(event.SpecChanged{FilePath: path, ChangeType: event.ChangeRemoved})
		}
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

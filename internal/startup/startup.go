// Package startup implements boot-time reconciliation (§4.K): load the
// planner cache, run every poller once synchronously so the store holds
// a coherent snapshot, reconcile orphaned worktrees, and synthesize
// recovery transitions for work items an agent was mid-run on when the
// process last exited.
package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/executor"
	"github.com/zgeoff/decree/internal/engine/loop"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/plannercache"
	"github.com/zgeoff/decree/internal/reconciler"
	"github.com/zgeoff/decree/internal/worktree"
)

// Run performs the full boot sequence against an already-constructed
// store/reconciler/executor/loop, returning once the store is primed and
// any recovery commands have been issued. Callers start l.Run and the
// reconciler's periodic Run only after this returns.
func Run(ctx context.Context, repoRoot string, store *state.Store, recon *reconciler.Reconciler, exec *executor.Executor, l *loop.Loop, wt *worktree.Manager, logger *slog.Logger) error {
	cached := plannercache.Load(repoRoot)
	next := store.GetState()
	for path, sha := range cached {
		next = next.WithLastPlannedSHA(path, sha)
	}
	store.SetState(next)

	if err := recon.PollOnce(ctx); err != nil {
		return fmt.Errorf("startup: initial poll: %w", err)
	}
	l.DrainOnce(ctx)

	keep := activeWorktreeBranches(store.GetState())
	wt.ReconcileOrphans(ctx, keep)

	recoverOrphanedRuns(store, exec, logger)
	return nil
}

// activeWorktreeBranches returns the implementor branch names for work
// items currently in progress — these are the only worktrees a restarted
// process should keep (§4.L).
func activeWorktreeBranches(snapshot *domain.EngineState) map[string]bool {
	keep := map[string]bool{}
	for id, w := range snapshot.WorkItems {
		if w.Status == domain.StatusInProgress {
			keep["decree/"+id] = true
		}
	}
	return keep
}

// recoverOrphanedRuns finds work items left in-progress or in-review
// with no active agent run — the process crashed or was killed mid-run —
// and synthesizes a transition back to pending so the normal handlers
// pick them up again on the next tick, per §4.K.
func recoverOrphanedRuns(store *state.Store, exec *executor.Executor, logger *slog.Logger) {
	snapshot := store.GetState()
	for id, w := range snapshot.WorkItems {
		if w.Status != domain.StatusInProgress && w.Status != domain.StatusReview {
			continue
		}
		if snapshot.ActiveRunForWorkItem(id) != nil {
			continue
		}
		logger.Info("startup: recovering orphaned work item", "workItemID", id, "status", w.Status)
		exec.Execute(context.Background(), command.TransitionWorkItem{WorkItemID: id, NewStatus: domain.StatusPending})
	}
}

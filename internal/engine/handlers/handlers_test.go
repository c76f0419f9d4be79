package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

func TestPlanning_SpecChangedRequestsPlannerWhenBlobSHAAdvanced(t *testing.T) {
	state := domain.Empty().
		WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-b", FrontmatterStatus: domain.SpecApproved}).
		WithLastPlannedSHA("specs/a.md", "sha-a")

	cmds := Planning(event.SpecChanged{FilePath: "specs/a.md", FrontmatterStatus: domain.SpecApproved, BlobSHA: "sha-b"}, state)

	require.Len(t, cmds, 1)
	req, ok := cmds[0].(command.RequestPlannerRun)
	require.True(t, ok)
	assert.Equal(t, []string{"specs/a.md"}, req.SpecPaths)
}

func TestPlanning_SpecChangedNoOpWhenSHAUnchanged(t *testing.T) {
	state := domain.Empty().
		WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-a", FrontmatterStatus: domain.SpecApproved}).
		WithLastPlannedSHA("specs/a.md", "sha-a")

	cmds := Planning(event.SpecChanged{FilePath: "specs/a.md", FrontmatterStatus: domain.SpecApproved, BlobSHA: "sha-a"}, state)
	assert.Nil(t, cmds)
}

func TestPlanning_SpecChangedNoOpWhenNotApproved(t *testing.T) {
	state := domain.Empty().WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-b", FrontmatterStatus: domain.SpecDraft})
	cmds := Planning(event.SpecChanged{FilePath: "specs/a.md", FrontmatterStatus: domain.SpecDraft, BlobSHA: "sha-b"}, state)
	assert.Nil(t, cmds)
}

func TestPlanning_PlannerCompletedExpandsResultAndRequestsFollowUp(t *testing.T) {
	state := domain.Empty().
		WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-b", FrontmatterStatus: domain.SpecApproved}).
		WithSpec("specs/b.md", &domain.Spec{FilePath: "specs/b.md", BlobSHA: "sha-1", FrontmatterStatus: domain.SpecApproved}).
		WithLastPlannedSHA("specs/a.md", "sha-b").  // already caught up
		WithLastPlannedSHA("specs/b.md", "sha-0") // still behind

	ev := event.PlannerCompleted{
		SessionID: "s1",
		SpecPaths: []string{"specs/a.md"},
		Create:    []event.PlannerCreateItem{{Title: "new", Body: "b"}},
		Close:     []string{"wi-9"},
	}
	cmds := Planning(ev, state)

	require.Len(t, cmds, 2)
	applied, ok := cmds[0].(command.ApplyPlannerResult)
	require.True(t, ok)
	assert.Equal(t, "s1", applied.SessionID)
	assert.Equal(t, []string{"wi-9"}, applied.Close)
	require.Len(t, applied.Create, 1)
	assert.Equal(t, "new", applied.Create[0].Title)

	followUp, ok := cmds[1].(command.RequestPlannerRun)
	require.True(t, ok)
	assert.Equal(t, []string{"specs/b.md"}, followUp.SpecPaths)
}

func TestReadiness_PromotesPendingWorkItemOnceBlockersResolved(t *testing.T) {
	state := domain.Empty().WithWorkItem("blocker", &domain.WorkItem{ID: "blocker", Status: domain.StatusClosed})
	cmds := Readiness(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusPending, BlockedBy: []string{"blocker"}}, state)

	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, "wi-1", transition.WorkItemID)
	assert.Equal(t, domain.StatusReady, transition.NewStatus)
}

func TestReadiness_NoOpWhileBlockerStillOpen(t *testing.T) {
	state := domain.Empty().WithWorkItem("blocker", &domain.WorkItem{ID: "blocker", Status: domain.StatusInProgress})
	cmds := Readiness(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusPending, BlockedBy: []string{"blocker"}}, state)
	assert.Nil(t, cmds)
}

func TestDependencyResolution_PromotesUnblockedDependentsOnClose(t *testing.T) {
	state := domain.Empty().
		WithWorkItem("dep", &domain.WorkItem{ID: "dep", Status: domain.StatusPending, BlockedBy: []string{"wi-1"}}).
		WithWorkItem("wi-1", &domain.WorkItem{ID: "wi-1", Status: domain.StatusClosed})

	cmds := DependencyResolution(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusClosed}, state)

	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, "dep", transition.WorkItemID)
	assert.Equal(t, domain.StatusReady, transition.NewStatus)
}

func TestDependencyResolution_NoOpOnUnrelatedTransition(t *testing.T) {
	state := domain.Empty().WithWorkItem("dep", &domain.WorkItem{ID: "dep", Status: domain.StatusPending, BlockedBy: []string{"wi-1"}})
	cmds := DependencyResolution(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusInProgress}, state)
	assert.Nil(t, cmds)
}

func TestImplementation_ReadyWorkItemRequestsImplementorRun(t *testing.T) {
	cmds := Implementation(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusReady}, domain.Empty())
	require.Len(t, cmds, 1)
	req := cmds[0].(command.RequestImplementorRun)
	assert.Equal(t, "wi-1", req.WorkItemID)
}

func TestImplementation_RequestedTransitionsToInProgress(t *testing.T) {
	ev := event.NewRequested(event.Requested{Role: domain.RoleImplementor, SessionID: "s1", WorkItemID: "wi-1"})
	cmds := Implementation(ev, domain.Empty())
	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, domain.StatusInProgress, transition.NewStatus)
}

func TestImplementation_CompletedExpandsApplyResult(t *testing.T) {
	ev := event.ImplementorCompleted{SessionID: "s1", WorkItemID: "wi-1", Outcome: "completed", Summary: "done", Patch: "diff"}
	cmds := Implementation(ev, domain.Empty())
	require.Len(t, cmds, 1)
	applied := cmds[0].(command.ApplyImplementorResult)
	assert.Equal(t, "wi-1", applied.WorkItemID)
	assert.Equal(t, "completed", applied.Outcome)
}

func TestImplementation_FailedWithKnownRunRevertsToPending(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RoleImplementor, WorkItemID: "wi-1"})
	cmds := Implementation(event.NewFailed(event.Failed{Role: domain.RoleImplementor, SessionID: "s1"}), state)
	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, domain.StatusPending, transition.NewStatus)
}

func TestImplementation_FailedWithUnknownSessionIsNoOp(t *testing.T) {
	cmds := Implementation(event.NewFailed(event.Failed{Role: domain.RoleImplementor, SessionID: "missing"}), domain.Empty())
	assert.Nil(t, cmds)
}

func TestReview_RevisionPipelineSuccessRequestsReviewerRunWhenInReview(t *testing.T) {
	state := domain.Empty().WithWorkItem("wi-1", &domain.WorkItem{ID: "wi-1", Status: domain.StatusReview})
	ev := event.RevisionChanged{ID: "rev-1", WorkItemID: "wi-1", NewPipelineStatus: domain.PipelineSuccess}
	cmds := Review(ev, state)

	require.Len(t, cmds, 1)
	req := cmds[0].(command.RequestReviewerRun)
	assert.Equal(t, "wi-1", req.WorkItemID)
	assert.Equal(t, "rev-1", req.RevisionID)
}

func TestReview_RevisionPipelineFailureIsNoOp(t *testing.T) {
	state := domain.Empty().WithWorkItem("wi-1", &domain.WorkItem{ID: "wi-1", Status: domain.StatusReview})
	cmds := Review(event.RevisionChanged{ID: "rev-1", WorkItemID: "wi-1", NewPipelineStatus: domain.PipelineFailure}, state)
	assert.Nil(t, cmds)
}

func TestReview_ReviewerCompletedExpandsApplyResultWithComments(t *testing.T) {
	line := 12
	ev := event.ReviewerCompleted{
		SessionID: "s1", WorkItemID: "wi-1", RevisionID: "rev-1", Verdict: "needs-changes", Summary: "fix it",
		Comments: []event.ReviewComment{{Path: "a.go", Line: &line, Body: "nit"}},
	}
	cmds := Review(ev, domain.Empty())
	require.Len(t, cmds, 1)
	applied := cmds[0].(command.ApplyReviewerResult)
	require.Len(t, applied.Comments, 1)
	assert.Equal(t, "a.go", applied.Comments[0].Path)
	assert.Equal(t, &line, applied.Comments[0].Line)
}

func TestReview_ReviewerFailedWithKnownRunRevertsWorkItemToPending(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RoleReviewer, WorkItemID: "wi-1"})
	cmds := Review(event.NewFailed(event.Failed{Role: domain.RoleReviewer, SessionID: "s1"}), state)
	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, domain.StatusPending, transition.NewStatus)
}

func TestOrphanRecovery_InProgressWithoutActiveRunRevertsToPending(t *testing.T) {
	cmds := OrphanRecovery(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusInProgress}, domain.Empty())
	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, domain.StatusPending, transition.NewStatus)
}

func TestOrphanRecovery_InProgressWithActiveRunIsLeftAlone(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RoleImplementor, WorkItemID: "wi-1", Status: domain.RunRunning})
	cmds := OrphanRecovery(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusInProgress}, state)
	assert.Nil(t, cmds)
}

func TestUserDispatch_RequestedImplementorRunTranslatesDirectly(t *testing.T) {
	cmds := UserDispatch(event.UserRequestedImplementorRun{WorkItemID: "wi-1"}, domain.Empty())
	require.Len(t, cmds, 1)
	req := cmds[0].(command.RequestImplementorRun)
	assert.Equal(t, "wi-1", req.WorkItemID)
}

func TestUserDispatch_CancelledRunDispatchesByRunRole(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RolePlanner})
	cmds := UserDispatch(event.UserCancelledRun{SessionID: "s1"}, state)
	require.Len(t, cmds, 1)
	_, ok := cmds[0].(command.CancelPlannerRun)
	assert.True(t, ok)
}

func TestUserDispatch_CancelledUnknownSessionIsNoOp(t *testing.T) {
	cmds := UserDispatch(event.UserCancelledRun{SessionID: "missing"}, domain.Empty())
	assert.Nil(t, cmds)
}

func TestUserDispatch_TransitionedStatusTranslatesDirectly(t *testing.T) {
	cmds := UserDispatch(event.UserTransitionedStatus{WorkItemID: "wi-1", NewStatus: domain.StatusBlocked}, domain.Empty())
	require.Len(t, cmds, 1)
	transition := cmds[0].(command.TransitionWorkItem)
	assert.Equal(t, domain.StatusBlocked, transition.NewStatus)
}

func TestRun_ConcatenatesEveryHandlersCommandsInOrder(t *testing.T) {
	state := domain.Empty().WithWorkItem("blocker", &domain.WorkItem{ID: "blocker", Status: domain.StatusClosed})
	cmds := Run(event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusPending, BlockedBy: []string{"blocker"}}, state)
	require.Len(t, cmds, 1)
	assert.IsType(t, command.TransitionWorkItem{}, cmds[0])
}

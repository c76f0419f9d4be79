package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItemStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusClosed.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.False(t, StatusReady.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}

func TestAgentRunStatus_ActiveAndTerminal(t *testing.T) {
	assert.True(t, RunRequested.Active())
	assert.True(t, RunRunning.Active())
	assert.False(t, RunCompleted.Active())

	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunTimedOut.Terminal())
	assert.True(t, RunCancelled.Terminal())
	assert.False(t, RunRequested.Terminal())
	assert.False(t, RunRunning.Terminal())
}

func TestWorkItem_CloneIsIndependentOfOriginal(t *testing.T) {
	w := &WorkItem{ID: "wi-1", BlockedBy: []string{"a", "b"}}
	c := w.Clone()
	c.BlockedBy[0] = "mutated"
	assert.Equal(t, "a", w.BlockedBy[0])
}

func TestWorkItem_CloneOfNilIsNil(t *testing.T) {
	var w *WorkItem
	assert.Nil(t, w.Clone())
}

func TestRevision_ClonesPipelinePointerIndependently(t *testing.T) {
	r := &Revision{ID: "rev-1", Pipeline: &Pipeline{Status: PipelineSuccess}}
	c := r.Clone()
	c.Pipeline.Status = PipelineFailure
	assert.Equal(t, PipelineSuccess, r.Pipeline.Status)
}

func TestRevision_CloneWithNilPipeline(t *testing.T) {
	r := &Revision{ID: "rev-1"}
	c := r.Clone()
	assert.Nil(t, c.Pipeline)
}

func TestAgentRun_CloneIsIndependentOfOriginal(t *testing.T) {
	a := &AgentRun{SessionID: "s1", SpecPaths: []string{"a.md"}}
	c := a.Clone()
	c.SpecPaths[0] = "mutated"
	assert.Equal(t, "a.md", a.SpecPaths[0])
}

func TestEmpty_HasInitializedNonNilMaps(t *testing.T) {
	s := Empty()
	assert.NotNil(t, s.WorkItems)
	assert.NotNil(t, s.Revisions)
	assert.NotNil(t, s.Specs)
	assert.NotNil(t, s.AgentRuns)
	assert.NotNil(t, s.LastPlannedSHAs)
	assert.Nil(t, s.Errors)
}

func TestWithWorkItem_UpsertLeavesOriginalUntouched(t *testing.T) {
	s := Empty()
	next := s.WithWorkItem("wi-1", &WorkItem{ID: "wi-1", Title: "t"})
	assert.Empty(t, s.WorkItems)
	assert.Equal(t, "t", next.WorkItems["wi-1"].Title)
}

func TestWithWorkItem_NilRemoves(t *testing.T) {
	s := Empty().WithWorkItem("wi-1", &WorkItem{ID: "wi-1"})
	next := s.WithWorkItem("wi-1", nil)
	_, ok := next.WorkItems["wi-1"]
	assert.False(t, ok)
	_, stillOk := s.WorkItems["wi-1"]
	assert.True(t, stillOk)
}

func TestWithRevision_UpsertAndRemove(t *testing.T) {
	s := Empty().WithRevision("rev-1", &Revision{ID: "rev-1"})
	assert.Contains(t, s.Revisions, "rev-1")
	next := s.WithRevision("rev-1", nil)
	assert.NotContains(t, next.Revisions, "rev-1")
}

func TestWithSpec_UpsertAndRemove(t *testing.T) {
	s := Empty().WithSpec("a.md", &Spec{FilePath: "a.md"})
	assert.Contains(t, s.Specs, "a.md")
	next := s.WithSpec("a.md", nil)
	assert.NotContains(t, next.Specs, "a.md")
}

func TestWithAgentRun_Upsert(t *testing.T) {
	s := Empty().WithAgentRun("s1", &AgentRun{SessionID: "s1", Status: RunRequested})
	assert.Equal(t, RunRequested, s.AgentRuns["s1"].Status)
}

func TestWithLastPlannedSHA_Upsert(t *testing.T) {
	s := Empty().WithLastPlannedSHA("a.md", "sha-1")
	assert.Equal(t, "sha-1", s.LastPlannedSHAs["a.md"])
}

func TestWithError_EvictsEldestBeyondMaxErrors(t *testing.T) {
	s := Empty()
	for i := 0; i < MaxErrors+5; i++ {
		s = s.WithError(ErrorEntry{Event: string(rune('a' + i%26))})
	}
	assert.Len(t, s.Errors, MaxErrors)
}

func TestWithError_AppendsInOrder(t *testing.T) {
	s := Empty().WithError(ErrorEntry{Event: "first"}).WithError(ErrorEntry{Event: "second"})
	require.Len(t, s.Errors, 2)
	assert.Equal(t, "first", s.Errors[0].Event)
	assert.Equal(t, "second", s.Errors[1].Event)
}

func TestActiveRun_FindsRequestedOrRunningForRole(t *testing.T) {
	s := Empty().
		WithAgentRun("s1", &AgentRun{SessionID: "s1", Role: RolePlanner, Status: RunCompleted}).
		WithAgentRun("s2", &AgentRun{SessionID: "s2", Role: RolePlanner, Status: RunRunning})

	run := s.ActiveRun(RolePlanner)
	require.NotNil(t, run)
	assert.Equal(t, "s2", run.SessionID)
}

func TestActiveRun_NilWhenNoneActive(t *testing.T) {
	s := Empty().WithAgentRun("s1", &AgentRun{SessionID: "s1", Role: RolePlanner, Status: RunCompleted})
	assert.Nil(t, s.ActiveRun(RolePlanner))
}

func TestActiveRunForWorkItem_MatchesImplementorOrReviewer(t *testing.T) {
	s := Empty().WithAgentRun("s1", &AgentRun{SessionID: "s1", Role: RoleReviewer, WorkItemID: "wi-1", Status: RunRunning})
	run := s.ActiveRunForWorkItem("wi-1")
	require.NotNil(t, run)
	assert.Equal(t, "s1", run.SessionID)
}

func TestActiveRunForWorkItem_IgnoresInactiveRuns(t *testing.T) {
	s := Empty().WithAgentRun("s1", &AgentRun{SessionID: "s1", Role: RoleImplementor, WorkItemID: "wi-1", Status: RunCompleted})
	assert.Nil(t, s.ActiveRunForWorkItem("wi-1"))
}

func TestDependents_ReturnsEveryWorkItemBlockedOnID(t *testing.T) {
	s := Empty().
		WithWorkItem("dep-1", &WorkItem{ID: "dep-1", BlockedBy: []string{"wi-1"}}).
		WithWorkItem("dep-2", &WorkItem{ID: "dep-2", BlockedBy: []string{"wi-1", "wi-2"}}).
		WithWorkItem("unrelated", &WorkItem{ID: "unrelated", BlockedBy: []string{"wi-2"}})

	deps := s.Dependents("wi-1")
	ids := make([]string, len(deps))
	for i, d := range deps {
		ids[i] = d.ID
	}
	assert.ElementsMatch(t, []string{"dep-1", "dep-2"}, ids)
}

func TestBlockersResolved_TrueForEmptyList(t *testing.T) {
	assert.True(t, Empty().BlockersResolved(nil))
}

func TestBlockersResolved_FalseWhenBlockerMissing(t *testing.T) {
	assert.False(t, Empty().BlockersResolved([]string{"missing"}))
}

func TestBlockersResolved_FalseWhenBlockerNotTerminal(t *testing.T) {
	s := Empty().WithWorkItem("wi-1", &WorkItem{ID: "wi-1", Status: StatusInProgress})
	assert.False(t, s.BlockersResolved([]string{"wi-1"}))
}

func TestBlockersResolved_TrueWhenAllBlockersTerminal(t *testing.T) {
	s := Empty().
		WithWorkItem("wi-1", &WorkItem{ID: "wi-1", Status: StatusClosed}).
		WithWorkItem("wi-2", &WorkItem{ID: "wi-2", Status: StatusApproved})
	assert.True(t, s.BlockersResolved([]string{"wi-1", "wi-2"}))
}

func TestApprovedSpecPaths_ReturnsOnlyApprovedSortedPaths(t *testing.T) {
	s := Empty().
		WithSpec("b.md", &Spec{FilePath: "b.md", FrontmatterStatus: SpecApproved}).
		WithSpec("a.md", &Spec{FilePath: "a.md", FrontmatterStatus: SpecApproved}).
		WithSpec("c.md", &Spec{FilePath: "c.md", FrontmatterStatus: SpecDraft})

	assert.Equal(t, []string{"a.md", "b.md"}, s.ApprovedSpecPaths())
}

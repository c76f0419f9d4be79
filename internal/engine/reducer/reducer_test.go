package reducer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApply_WorkItemChangedUpsertsWorkItem(t *testing.T) {
	state := domain.Empty()
	next := Apply(testLogger(), state, time.Now(), event.WorkItemChanged{ID: "wi-1", NewStatus: domain.StatusReady, Title: "t"})
	assert.Equal(t, "t", next.WorkItems["wi-1"].Title)
}

func TestApply_WorkItemChangedEmptyStatusRemoves(t *testing.T) {
	state := domain.Empty().WithWorkItem("wi-1", &domain.WorkItem{ID: "wi-1", Status: domain.StatusReady})
	next := Apply(testLogger(), state, time.Now(), event.WorkItemChanged{ID: "wi-1", NewStatus: ""})
	_, ok := next.WorkItems["wi-1"]
	assert.False(t, ok)
}

func TestApply_RequestedCreatesRunInRequestedState(t *testing.T) {
	state := domain.Empty()
	ev := event.NewRequested(event.Requested{Role: domain.RolePlanner, SessionID: "s1"})
	next := Apply(testLogger(), state, time.Now(), ev)
	run := next.AgentRuns["s1"]
	assert.NotNil(t, run)
	assert.Equal(t, domain.RunRequested, run.Status)
}

func TestApply_StartedTransitionsRequestedToRunning(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RolePlanner, Status: domain.RunRequested})
	ev := event.NewStarted(event.Started{Role: domain.RolePlanner, SessionID: "s1", LogFilePath: "/tmp/log"})
	next := Apply(testLogger(), state, time.Now(), ev)
	run := next.AgentRuns["s1"]
	assert.Equal(t, domain.RunRunning, run.Status)
	assert.Equal(t, "/tmp/log", run.LogFilePath)
}

func TestApply_StartedOnMissingRunIsDroppedSilently(t *testing.T) {
	state := domain.Empty()
	ev := event.NewStarted(event.Started{Role: domain.RolePlanner, SessionID: "missing"})
	next := Apply(testLogger(), state, time.Now(), ev)
	assert.Same(t, state, next)
}

func TestApply_StartedOnAlreadyRunningRunIsDropped(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RolePlanner, Status: domain.RunRunning})
	ev := event.NewStarted(event.Started{Role: domain.RolePlanner, SessionID: "s1"})
	next := Apply(testLogger(), state, time.Now(), ev)
	assert.Same(t, state, next)
}

func TestApply_FailedMarksRunTimedOutOnTimeoutReason(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RoleImplementor, Status: domain.RunRunning})
	ev := event.NewFailed(event.Failed{Role: domain.RoleImplementor, SessionID: "s1", Reason: event.ReasonTimeout, Err: "deadline exceeded"})
	next := Apply(testLogger(), state, time.Now(), ev)
	run := next.AgentRuns["s1"]
	assert.Equal(t, domain.RunTimedOut, run.Status)
	assert.Equal(t, "deadline exceeded", run.Err)
}

func TestApply_FailedOnTerminalRunIsDropped(t *testing.T) {
	state := domain.Empty().WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RoleImplementor, Status: domain.RunCompleted})
	ev := event.NewFailed(event.Failed{Role: domain.RoleImplementor, SessionID: "s1", Err: "too late"})
	next := Apply(testLogger(), state, time.Now(), ev)
	assert.Same(t, state, next)
}

func TestApply_PlannerCompletedAdvancesLastPlannedSHAs(t *testing.T) {
	state := domain.Empty().
		WithAgentRun("s1", &domain.AgentRun{SessionID: "s1", Role: domain.RolePlanner, Status: domain.RunRunning}).
		WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-a"})

	ev := event.PlannerCompleted{SessionID: "s1", SpecPaths: []string{"specs/a.md"}}
	next := Apply(testLogger(), state, time.Now(), ev)

	assert.Equal(t, "sha-a", next.LastPlannedSHAs["specs/a.md"])
	assert.Equal(t, domain.RunCompleted, next.AgentRuns["s1"].Status)
}

func TestApply_PlannerCompletedOnUnknownRunLeavesSHAsUntouched(t *testing.T) {
	state := domain.Empty().WithSpec("specs/a.md", &domain.Spec{FilePath: "specs/a.md", BlobSHA: "sha-a"})
	ev := event.PlannerCompleted{SessionID: "missing", SpecPaths: []string{"specs/a.md"}}
	next := Apply(testLogger(), state, time.Now(), ev)
	assert.Same(t, state, next)
}

func TestApply_CommandRejectedRecordsError(t *testing.T) {
	state := domain.Empty()
	now := time.Now()
	next := Apply(testLogger(), state, now, event.CommandRejected{Command: "startAgent", Reason: "concurrency limit"})
	assert.Len(t, next.Errors, 1)
	assert.Contains(t, next.Errors[0].Event, "concurrency limit")
}

func TestApply_UserEventsDoNotMutateState(t *testing.T) {
	state := domain.Empty()
	next := Apply(testLogger(), state, time.Now(), event.UserRequestedImplementorRun{WorkItemID: "wi-1"})
	assert.Same(t, state, next)
}

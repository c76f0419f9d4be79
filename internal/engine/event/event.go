// Package event defines the closed set of events the reducer and handlers
// consume, per the specification's event reducer design.
package event

import (
	"time"

	"github.com/zgeoff/decree/internal/domain"
)

// Kind identifies an event's concrete type for switch dispatch.
type Kind string

const (
	KindWorkItemChanged Kind = "workItemChanged"
	KindRevisionChanged Kind = "revisionChanged"
	KindSpecChanged     Kind = "specChanged"

	KindPlannerRequested Kind = "plannerRequested"
	KindPlannerStarted   Kind = "plannerStarted"
	KindPlannerCompleted Kind = "plannerCompleted"
	KindPlannerFailed    Kind = "plannerFailed"

	KindImplementorRequested Kind = "implementorRequested"
	KindImplementorStarted   Kind = "implementorStarted"
	KindImplementorCompleted Kind = "implementorCompleted"
	KindImplementorFailed    Kind = "implementorFailed"

	KindReviewerRequested Kind = "reviewerRequested"
	KindReviewerStarted   Kind = "reviewerStarted"
	KindReviewerCompleted Kind = "reviewerCompleted"
	KindReviewerFailed    Kind = "reviewerFailed"

	KindCommandRejected Kind = "commandRejected"
	KindCommandFailed   Kind = "commandFailed"

	KindUserRequestedImplementorRun Kind = "userRequestedImplementorRun"
	KindUserCancelledRun            Kind = "userCancelledRun"
	KindUserTransitionedStatus      Kind = "userTransitionedStatus"
)

// FailReason is the closed set of reasons a *Failed event carries.
type FailReason string

const (
	ReasonError     FailReason = "error"
	ReasonTimeout   FailReason = "timeout"
	ReasonCancelled FailReason = "cancelled"
)

// Event is implemented by every concrete event type.
type Event interface {
	Kind() Kind
}

// WorkItemChanged is emitted by the reconciler's work-item poller (or a
// user transition) when an observed WorkItem is new, changed, or removed.
// NewStatus == "" signals removal.
type WorkItemChanged struct {
	ID             string
	OldStatus      domain.WorkItemStatus
	NewStatus      domain.WorkItemStatus
	Title          string
	Body           string
	Priority       domain.Priority
	Complexity     string
	CreatedAt      time.Time
	BlockedBy      []string
	LinkedRevision string
}

func (WorkItemChanged) Kind() Kind { return KindWorkItemChanged }

// RevisionChanged is emitted by the reconciler's revision poller.
// Removed, or an empty NewPipelineStatus, signals deletion.
type RevisionChanged struct {
	ID                string
	Removed           bool
	OldPipelineStatus domain.PipelineStatus
	NewPipelineStatus domain.PipelineStatus
	Title             string
	URL               string
	HeadSHA           string
	HeadRef           string
	Author            string
	Body              string
	IsDraft           bool
	WorkItemID        string
	PipelineURL       string
	PipelineReason    string
	ReviewID          string
}

func (RevisionChanged) Kind() Kind { return KindRevisionChanged }

// ChangeType classifies a spec observation.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// SpecChanged is emitted by the reconciler's spec poller.
type SpecChanged struct {
	FilePath          string
	ChangeType        ChangeType
	BlobSHA           string
	FrontmatterStatus domain.SpecFrontmatterStatus
	CommitSHA         string // "" if unavailable
}

func (SpecChanged) Kind() Kind { return KindSpecChanged }

// --- Agent lifecycle events, one trio per role ---
//
// Requested/Started/Failed share a payload shape across the three
// roles; each carries its own resolved Kind (set by its constructor)
// rather than branching on Role at dispatch time. Completed has a
// separate type per role.

func kindFor(role domain.AgentRole, table map[domain.AgentRole]Kind) Kind {
	return table[role]
}

var requestedKinds = map[domain.AgentRole]Kind{
	domain.RolePlanner:     KindPlannerRequested,
	domain.RoleImplementor: KindImplementorRequested,
	domain.RoleReviewer:    KindReviewerRequested,
}

var startedKinds = map[domain.AgentRole]Kind{
	domain.RolePlanner:     KindPlannerStarted,
	domain.RoleImplementor: KindImplementorStarted,
	domain.RoleReviewer:    KindReviewerStarted,
}

var failedKinds = map[domain.AgentRole]Kind{
	domain.RolePlanner:     KindPlannerFailed,
	domain.RoleImplementor: KindImplementorFailed,
	domain.RoleReviewer:    KindReviewerFailed,
}

// Requested is emitted by the executor immediately before it calls the
// runtime adapter's startAgent.
type Requested struct {
	kind       Kind
	Role       domain.AgentRole
	SessionID  string
	SpecPaths  []string // planner
	WorkItemID string   // implementor, reviewer
	BranchName string   // implementor
	RevisionID string   // reviewer
}

func (r Requested) Kind() Kind { return r.kind }

// NewRequested builds a role-tagged Requested event.
func NewRequested(p Requested) Requested {
	p.kind = kindFor(p.Role, requestedKinds)
	return p
}

// Started is emitted by the executor, for every role, when the runtime
// adapter yields its first message.
type Started struct {
	kind        Kind
	Role        domain.AgentRole
	SessionID   string
	LogFilePath string
}

func (s Started) Kind() Kind { return s.kind }

func NewStarted(p Started) Started {
	p.kind = kindFor(p.Role, startedKinds)
	return p
}

// PlannerCreateItem is one work item the planner's structured output
// proposed creating.
type PlannerCreateItem struct {
	TempID    string
	Title     string
	Body      string
	Labels    []string
	BlockedBy []string
}

// PlannerUpdateItem is one work item the planner's structured output
// proposed updating. Nil fields mean "leave unchanged".
type PlannerUpdateItem struct {
	WorkItemID string
	Body       *string
	Labels     *[]string
}

// PlannerCompleted carries the planner's full structured result plus the
// spec paths it ran against, so the reducer can advance lastPlannedSHAs
// and the Planning handler can emit applyPlannerResult.
type PlannerCompleted struct {
	SessionID string
	SpecPaths []string
	Create    []PlannerCreateItem
	Close     []string
	Update    []PlannerUpdateItem
}

func (PlannerCompleted) Kind() Kind { return KindPlannerCompleted }

// ImplementorCompleted carries the implementor's structured result.
type ImplementorCompleted struct {
	SessionID  string
	WorkItemID string
	Outcome    string // "completed" | "blocked" | "validation-failure"
	Summary    string
	Patch      string // set when Outcome == "completed"
}

func (ImplementorCompleted) Kind() Kind { return KindImplementorCompleted }

// ReviewComment is one inline comment from a reviewer's structured
// result.
type ReviewComment struct {
	Path string
	Line *int
	Body string
}

// ReviewerCompleted carries the reviewer's structured result.
type ReviewerCompleted struct {
	SessionID  string
	WorkItemID string
	RevisionID string
	Verdict    string // "approve" | "needs-changes"
	Summary    string
	Comments   []ReviewComment
}

func (ReviewerCompleted) Kind() Kind { return KindReviewerCompleted }

// Failed is emitted for any role's failure, timeout, or cancellation.
type Failed struct {
	kind      Kind
	Role      domain.AgentRole
	SessionID string
	Reason    FailReason
	Err       string
}

func (f Failed) Kind() Kind { return f.kind }

func NewFailed(p Failed) Failed {
	p.kind = kindFor(p.Role, failedKinds)
	return p
}

// CommandRejected is emitted when the executor's concurrency guard drops
// a command.
type CommandRejected struct {
	Command string
	Reason  string
}

func (CommandRejected) Kind() Kind { return KindCommandRejected }

// CommandFailed is emitted after a command's final retry failure.
type CommandFailed struct {
	Command string
	Err     string
}

func (CommandFailed) Kind() Kind { return KindCommandFailed }

// UserRequestedImplementorRun is a user-originated request to (re)run the
// implementor for a work item.
type UserRequestedImplementorRun struct {
	WorkItemID string
}

func (UserRequestedImplementorRun) Kind() Kind { return KindUserRequestedImplementorRun }

// UserCancelledRun is a user-originated cancellation of an in-flight run.
type UserCancelledRun struct {
	SessionID string
}

func (UserCancelledRun) Kind() Kind { return KindUserCancelledRun }

// UserTransitionedStatus is a user-originated manual status override.
type UserTransitionedStatus struct {
	WorkItemID string
	NewStatus  domain.WorkItemStatus
}

func (UserTransitionedStatus) Kind() Kind { return KindUserTransitionedStatus }

// Package command defines the commands handlers emit and the executor
// performs, per the specification's command executor design.
package command

import "github.com/zgeoff/decree/internal/domain"

// Kind identifies a command's concrete type.
type Kind string

const (
	KindCreateWorkItem          Kind = "createWorkItem"
	KindUpdateWorkItem          Kind = "updateWorkItem"
	KindTransitionWorkItem      Kind = "transitionWorkItemStatus"
	KindCreateRevisionFromPatch Kind = "createRevisionFromPatch"
	KindUpdateRevision          Kind = "updateRevision"
	KindCommentOnRevision       Kind = "commentOnRevision"
	KindPostRevisionReview      Kind = "postRevisionReview"
	KindUpdateRevisionReview    Kind = "updateRevisionReview"
	KindRequestPlannerRun       Kind = "requestPlannerRun"
	KindRequestImplementorRun   Kind = "requestImplementorRun"
	KindRequestReviewerRun      Kind = "requestReviewerRun"
	KindApplyPlannerResult      Kind = "applyPlannerResult"
	KindApplyImplementorResult Kind = "applyImplementorResult"
	KindApplyReviewerResult     Kind = "applyReviewerResult"
	KindCancelPlannerRun        Kind = "cancelPlannerRun"
	KindCancelImplementorRun    Kind = "cancelImplementorRun"
	KindCancelReviewerRun       Kind = "cancelReviewerRun"
)

// Command is implemented by every concrete command type.
type Command interface {
	Kind() Kind
}

// CreateWorkItem creates a new WorkItem via the work-provider writer.
type CreateWorkItem struct {
	Title     string
	Body      string
	Labels    []string
	BlockedBy []string
}

func (CreateWorkItem) Kind() Kind { return KindCreateWorkItem }

// UpdateWorkItem updates a WorkItem's body and/or labels. Nil fields mean
// "leave unchanged" (spec.md §9: preserve existing body when body is
// null).
type UpdateWorkItem struct {
	WorkItemID string
	Body       *string
	Labels     *[]string
}

func (UpdateWorkItem) Kind() Kind { return KindUpdateWorkItem }

// TransitionWorkItem moves a WorkItem to a new status.
type TransitionWorkItem struct {
	WorkItemID string
	NewStatus  domain.WorkItemStatus
}

func (TransitionWorkItem) Kind() Kind { return KindTransitionWorkItem }

// CreateRevisionFromPatch opens a Revision carrying patch, closing
// workItemID via the closing-keyword matcher's format.
type CreateRevisionFromPatch struct {
	WorkItemID string
	Patch      string
	Title      string
	Body       string
}

func (CreateRevisionFromPatch) Kind() Kind { return KindCreateRevisionFromPatch }

// UpdateRevision updates a Revision's body.
type UpdateRevision struct {
	RevisionID string
	Body       string
}

func (UpdateRevision) Kind() Kind { return KindUpdateRevision }

// CommentOnRevision posts a plain comment to a Revision.
type CommentOnRevision struct {
	RevisionID string
	Body       string
}

func (CommentOnRevision) Kind() Kind { return KindCommentOnRevision }

// ReviewComment is one inline comment in a review submission.
type ReviewComment struct {
	Path string
	Line *int
	Body string
}

// PostRevisionReview submits a new review verdict on a Revision.
type PostRevisionReview struct {
	RevisionID string
	Verdict    string // "approve" | "needs-changes"
	Summary    string
	Comments   []ReviewComment
}

func (PostRevisionReview) Kind() Kind { return KindPostRevisionReview }

// UpdateRevisionReview amends a previously posted review.
type UpdateRevisionReview struct {
	RevisionID string
	ReviewID   string
	Verdict    string
	Summary    string
	Comments   []ReviewComment
}

func (UpdateRevisionReview) Kind() Kind { return KindUpdateRevisionReview }

// RequestPlannerRun asks the executor to dispatch the planner over every
// currently-approved spec path.
type RequestPlannerRun struct {
	SpecPaths []string
}

func (RequestPlannerRun) Kind() Kind { return KindRequestPlannerRun }

// RequestImplementorRun asks the executor to dispatch the implementor for
// a work item.
type RequestImplementorRun struct {
	WorkItemID string
}

func (RequestImplementorRun) Kind() Kind { return KindRequestImplementorRun }

// RequestReviewerRun asks the executor to dispatch the reviewer for a
// work item's linked revision.
type RequestReviewerRun struct {
	WorkItemID string
	RevisionID string
}

func (RequestReviewerRun) Kind() Kind { return KindRequestReviewerRun }

// PlannerCreate is one work item the planner proposed creating.
type PlannerCreate struct {
	TempID    string
	Title     string
	Body      string
	Labels    []string
	BlockedBy []string
}

// PlannerUpdate is one work item the planner proposed updating.
type PlannerUpdate struct {
	WorkItemID string
	Body       *string
	Labels     *[]string
}

// ApplyPlannerResult expands the planner's structured output into
// createWorkItem/updateWorkItem/transitionWorkItemStatus writes.
type ApplyPlannerResult struct {
	SessionID string
	Create    []PlannerCreate
	Close     []string
	Update    []PlannerUpdate
}

func (ApplyPlannerResult) Kind() Kind { return KindApplyPlannerResult }

// ApplyImplementorResult expands the implementor's structured output.
type ApplyImplementorResult struct {
	SessionID  string
	WorkItemID string
	Outcome    string // "completed" | "blocked" | "validation-failure"
	Summary    string
	Patch      string
}

func (ApplyImplementorResult) Kind() Kind { return KindApplyImplementorResult }

// ApplyReviewerResult expands the reviewer's structured output.
type ApplyReviewerResult struct {
	SessionID  string
	WorkItemID string
	RevisionID string
	Verdict    string // "approve" | "needs-changes"
	Summary    string
	Comments   []ReviewComment
}

func (ApplyReviewerResult) Kind() Kind { return KindApplyReviewerResult }

// CancelPlannerRun cancels the active planner run.
type CancelPlannerRun struct{ SessionID string }

func (CancelPlannerRun) Kind() Kind { return KindCancelPlannerRun }

// CancelImplementorRun cancels the active implementor run.
type CancelImplementorRun struct{ SessionID string }

func (CancelImplementorRun) Kind() Kind { return KindCancelImplementorRun }

// CancelReviewerRun cancels the active reviewer run.
type CancelReviewerRun struct{ SessionID string }

func (CancelReviewerRun) Kind() Kind { return KindCancelReviewerRun }

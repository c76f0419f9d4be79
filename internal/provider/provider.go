// Package provider defines the work-provider and revision-provider
// contracts the reconciler and executor talk to (§6), plus two small
// pure helpers that sit at the provider boundary: the closing-keyword
// matcher and the dependency-metadata formatter.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// FileStatus is the closed set of statuses a revision file diff entry
// carries.
type FileStatus string

const (
	FileAdded     FileStatus = "added"
	FileModified  FileStatus = "modified"
	FileRemoved   FileStatus = "removed"
	FileRenamed   FileStatus = "renamed"
	FileCopied    FileStatus = "copied"
	FileChanged   FileStatus = "changed"
	FileUnchanged FileStatus = "unchanged"
)

// WorkItemRecord is the provider's wire shape for a work item, ahead of
// translation into domain.WorkItem by the reconciler.
type WorkItemRecord struct {
	ID             string
	Title          string
	Body           string
	Priority       string
	Complexity     string
	Status         string
	BlockedBy      []string
	LinkedRevision string
}

// RevisionRecord is the provider's wire shape for a revision.
type RevisionRecord struct {
	ID         string
	Title      string
	URL        string
	HeadSHA    string
	HeadRef    string
	Author     string
	Body       string
	IsDraft    bool
	WorkItemID string
	ReviewID   string
}

// RevisionFile describes one changed file in a revision's diff.
type RevisionFile struct {
	Path   string
	Status FileStatus
	Patch  string // "" means null
}

// ReviewSubmission is one prior review posted on a revision.
type ReviewSubmission struct {
	Author string
	State  string
	Body   string
}

// InlineComment is one prior inline comment on a revision.
type InlineComment struct {
	Path   string
	Line   *int
	Author string
	Body   string
}

// ReviewHistory bundles a revision's prior reviews and inline comments.
type ReviewHistory struct {
	Reviews        []ReviewSubmission
	InlineComments []InlineComment
}

// SpecRecord is the provider's wire shape for a spec file.
type SpecRecord struct {
	FilePath string
	BlobSHA  string
}

// CombinedStatus is the provider's aggregate commit-status endpoint
// response, as consumed by pipeline derivation.
type CombinedStatus struct {
	State      string // "success" | "failure" | "pending"
	TotalCount int
}

// CheckRun is one entry from the provider's check-runs endpoint.
type CheckRun struct {
	Status     string // "completed" | other
	Conclusion string // "success" | "failure" | "cancelled" | "timed_out" | ...
	Name       string
	DetailsURL string
}

// WorkItemReader lists and fetches work items from the provider.
type WorkItemReader interface {
	ListWorkItems(ctx context.Context) ([]WorkItemRecord, error)
	GetWorkItem(ctx context.Context, id string) (*WorkItemRecord, error)
	GetWorkItemBody(ctx context.Context, id string) (string, error)
}

// WorkItemWriter mutates work items on the provider.
type WorkItemWriter interface {
	CreateWorkItem(ctx context.Context, title, body string, labels, blockedBy []string) (string, error)
	UpdateWorkItem(ctx context.Context, id string, body *string, labels *[]string) error
	TransitionStatus(ctx context.Context, id, newStatus string) error
}

// RevisionReader lists and fetches revisions and their associated data.
type RevisionReader interface {
	ListRevisions(ctx context.Context) ([]RevisionRecord, error)
	GetRevision(ctx context.Context, id string) (*RevisionRecord, error)
	GetRevisionFiles(ctx context.Context, id string) ([]RevisionFile, error)
	GetReviewHistory(ctx context.Context, revisionID string) (*ReviewHistory, error)
	GetCombinedStatus(ctx context.Context, headSHA string) (*CombinedStatus, error)
	ListCheckRuns(ctx context.Context, headSHA string) ([]CheckRun, error)
}

// RevisionWriter mutates revisions on the provider.
type RevisionWriter interface {
	CreateRevisionFromPatch(ctx context.Context, workItemID, patch, title, body string) (string, error)
	UpdateRevision(ctx context.Context, revisionID, body string) error
	CommentOnRevision(ctx context.Context, revisionID, body string) error
	PostRevisionReview(ctx context.Context, revisionID, verdict, summary string, comments []InlineComment) (string, error)
	UpdateRevisionReview(ctx context.Context, revisionID, reviewID, verdict, summary string, comments []InlineComment) error
}

// SpecReader lists specs and fetches their content by blob SHA.
type SpecReader interface {
	ListSpecs(ctx context.Context) ([]SpecRecord, error)
	GetSpecContent(ctx context.Context, blobSHA string) (string, error)
}

// dependencyMarkerRe recognises an existing dependency-metadata marker so
// AppendDependencyMetadata can be idempotent when appending to a body
// that already carries one.
var dependencyMarkerRe = regexp.MustCompile(`(?m)^<!-- decree:blockedBy [^>]*-->\s*$`)

// FormatDependencyMetadata renders the dependency-metadata comment
// appended to revision bodies (§6). An empty blockedBy list renders no
// marker at all.
func FormatDependencyMetadata(blockedBy []string) string {
	if len(blockedBy) == 0 {
		return ""
	}
	ids := make([]string, len(blockedBy))
	for i, id := range blockedBy {
		ids[i] = "#" + id
	}
	return fmt.Sprintf("<!-- decree:blockedBy %s -->", strings.Join(ids, " "))
}

// AppendDependencyMetadata appends the dependency-metadata marker to body
// on a fresh line, replacing any marker already present. blockedBy=nil or
// empty strips the marker entirely.
func AppendDependencyMetadata(body string, blockedBy []string) string {
	body = strings.TrimRight(dependencyMarkerRe.ReplaceAllString(body, ""), "\n")
	marker := FormatDependencyMetadata(blockedBy)
	if marker == "" {
		return body
	}
	if body == "" {
		return marker
	}
	return body + "\n" + marker
}

// closingKeywordRe matches one closing keyword followed by optional
// whitespace and a #<digits> reference. Keyword forms per §6.
var closingKeywordRe = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s*#(\d+)`)

// MatchClosingKeyword returns the first closing-keyword reference's
// numeric ID found in body, or "" if none is present (R3).
func MatchClosingKeyword(body string) string {
	m := closingKeywordRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

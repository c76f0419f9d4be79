// Package providertest provides thread-safe in-memory fakes of the
// provider interfaces for engine and reconciler tests, following the
// mutex-protected, call-recording mock style used for the LLM client.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/zgeoff/decree/internal/provider"
)

// WorkItems is an in-memory WorkItemReader and WorkItemWriter. Callers
// seed Items directly before a test; writes mutate the same map so a
// subsequent poll observes them.
type WorkItems struct {
	mu       sync.Mutex
	Items    map[string]provider.WorkItemRecord
	Bodies   map[string]string
	nextID   int
	ListErr  error
	Requests []string // recorded method calls, in order
}

// NewWorkItems returns an empty fake.
func NewWorkItems() *WorkItems {
	return &WorkItems{Items: map[string]provider.WorkItemRecord{}, Bodies: map[string]string{}}
}

func (w *WorkItems) record(call string) {
	w.Requests = append(w.Requests, call)
}

func (w *WorkItems) ListWorkItems(ctx context.Context) ([]provider.WorkItemRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("ListWorkItems")
	if w.ListErr != nil {
		return nil, w.ListErr
	}
	out := make([]provider.WorkItemRecord, 0, len(w.Items))
	for _, rec := range w.Items {
		out = append(out, rec)
	}
	return out, nil
}

func (w *WorkItems) GetWorkItem(ctx context.Context, id string) (*provider.WorkItemRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.Items[id]
	if !ok {
		return nil, fmt.Errorf("work item %s not found", id)
	}
	return &rec, nil
}

func (w *WorkItems) GetWorkItemBody(ctx context.Context, id string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Bodies[id], nil
}

func (w *WorkItems) CreateWorkItem(ctx context.Context, title, body string, labels, blockedBy []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("CreateWorkItem")
	w.nextID++
	id := fmt.Sprintf("wi-%d", w.nextID)
	w.Items[id] = provider.WorkItemRecord{ID: id, Title: title, Body: body, Status: "open", BlockedBy: blockedBy}
	w.Bodies[id] = body
	return id, nil
}

func (w *WorkItems) UpdateWorkItem(ctx context.Context, id string, body *string, labels *[]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("UpdateWorkItem")
	rec, ok := w.Items[id]
	if !ok {
		return fmt.Errorf("work item %s not found", id)
	}
	if body != nil {
		rec.Body = *body
		w.Bodies[id] = *body
	}
	w.Items[id] = rec
	return nil
}

func (w *WorkItems) TransitionStatus(ctx context.Context, id string, newStatus string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("TransitionStatus:" + newStatus)
	rec, ok := w.Items[id]
	if !ok {
		return fmt.Errorf("work item %s not found", id)
	}
	rec.Status = newStatus
	w.Items[id] = rec
	return nil
}

// Revisions is an in-memory RevisionReader and RevisionWriter.
type Revisions struct {
	mu        sync.Mutex
	Items     map[string]provider.RevisionRecord
	Files     map[string][]provider.RevisionFile
	History   map[string]provider.ReviewHistory
	Combined  map[string]*provider.CombinedStatus
	Checks    map[string][]provider.CheckRun
	nextID    int
	ListErr   error
	Requests  []string
}

// NewRevisions returns an empty fake.
func NewRevisions() *Revisions {
	return &Revisions{
		Items:    map[string]provider.RevisionRecord{},
		Files:    map[string][]provider.RevisionFile{},
		History:  map[string]provider.ReviewHistory{},
		Combined: map[string]*provider.CombinedStatus{},
		Checks:   map[string][]provider.CheckRun{},
	}
}

func (r *Revisions) ListRevisions(ctx context.Context) ([]provider.RevisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, "ListRevisions")
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]provider.RevisionRecord, 0, len(r.Items))
	for _, rec := range r.Items {
		out = append(out, rec)
	}
	return out, nil
}

func (r *Revisions) GetRevision(ctx context.Context, id string) (*provider.RevisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.Items[id]
	if !ok {
		return nil, fmt.Errorf("revision %s not found", id)
	}
	return &rec, nil
}

func (r *Revisions) GetRevisionFiles(ctx context.Context, id string) ([]provider.RevisionFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Files[id], nil
}

func (r *Revisions) GetReviewHistory(ctx context.Context, id string) (*provider.ReviewHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.History[id]
	return &h, nil
}

func (r *Revisions) GetCombinedStatus(ctx context.Context, sha string) (*provider.CombinedStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Combined[sha]; ok {
		return s, nil
	}
	return &provider.CombinedStatus{State: "pending", TotalCount: 0}, nil
}

func (r *Revisions) ListCheckRuns(ctx context.Context, sha string) ([]provider.CheckRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Checks[sha], nil
}

func (r *Revisions) CreateRevisionFromPatch(ctx context.Context, workItemID, patch, title, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, "CreateRevisionFromPatch")
	r.nextID++
	id := fmt.Sprintf("rev-%d", r.nextID)
	r.Items[id] = provider.RevisionRecord{ID: id, Title: title, Body: body, WorkItemID: workItemID, HeadSHA: fmt.Sprintf("sha-%d", r.nextID)}
	return id, nil
}

func (r *Revisions) UpdateRevision(ctx context.Context, id, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.Items[id]
	if !ok {
		return fmt.Errorf("revision %s not found", id)
	}
	rec.Body = body
	r.Items[id] = rec
	return nil
}

func (r *Revisions) CommentOnRevision(ctx context.Context, id, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, "CommentOnRevision")
	return nil
}

func (r *Revisions) PostRevisionReview(ctx context.Context, id, verdict, summary string, comments []provider.InlineComment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, "PostRevisionReview:"+verdict)
	h := r.History[id]
	h.Reviews = append(h.Reviews, provider.ReviewSubmission{Author: "decree", State: verdict, Body: summary})
	r.History[id] = h
	return fmt.Sprintf("review-%d", len(h.Reviews)), nil
}

func (r *Revisions) UpdateRevisionReview(ctx context.Context, id, reviewID, verdict, summary string, comments []provider.InlineComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, "UpdateRevisionReview:"+verdict)
	return nil
}

// Specs is an in-memory SpecReader.
type Specs struct {
	mu      sync.Mutex
	Records []provider.SpecRecord
	Content map[string]string
	ListErr error
}

// NewSpecs returns an empty fake.
func NewSpecs() *Specs {
	return &Specs{Content: map[string]string{}}
}

func (s *Specs) ListSpecs(ctx context.Context) ([]provider.SpecRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return append([]provider.SpecRecord(nil), s.Records...), nil
}

func (s *Specs) GetSpecContent(ctx context.Context, blobSHA string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Content[blobSHA], nil
}

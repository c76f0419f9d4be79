// Package domain holds the entities of the specification's data model:
// WorkItem, Revision, Spec, AgentRun, and the EngineState snapshot that
// aggregates them.
package domain

import (
	"sort"
	"time"
)

// WorkItemStatus is the closed set of statuses a WorkItem moves through.
type WorkItemStatus string

const (
	StatusPending           WorkItemStatus = "pending"
	StatusReady             WorkItemStatus = "ready"
	StatusInProgress        WorkItemStatus = "in-progress"
	StatusReview            WorkItemStatus = "review"
	StatusApproved          WorkItemStatus = "approved"
	StatusNeedsRefinement   WorkItemStatus = "needs-refinement"
	StatusBlocked           WorkItemStatus = "blocked"
	StatusClosed            WorkItemStatus = "closed"
)

// IsTerminal reports whether a status satisfies the readiness handler's
// "terminal status" requirement for a blocker.
func (s WorkItemStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusApproved
}

// Priority is the optional triage priority assigned to a WorkItem.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// WorkItem is a unit of work tracked on the code-hosting provider.
type WorkItem struct {
	ID             string
	Title          string
	Body           string
	Priority       Priority // "" means null
	Complexity     string
	CreatedAt      time.Time
	Status         WorkItemStatus
	BlockedBy      []string
	LinkedRevision string // "" means null
}

// Clone returns a deep copy, preserving copy-on-write semantics (I5).
func (w *WorkItem) Clone() *WorkItem {
	if w == nil {
		return nil
	}
	c := *w
	c.BlockedBy = append([]string(nil), w.BlockedBy...)
	return &c
}

// PipelineStatus is the derived CI aggregate for a Revision.
type PipelineStatus string

const (
	PipelineSuccess PipelineStatus = "success"
	PipelineFailure PipelineStatus = "failure"
	PipelinePending PipelineStatus = "pending"
)

// Pipeline is a Revision's derived CI result.
type Pipeline struct {
	Status PipelineStatus
	URL    string // "" means null
	Reason string // "" means null
}

// Revision is a proposed change set on the provider.
type Revision struct {
	ID             string
	Title          string
	URL            string
	HeadSHA        string
	HeadRef        string
	Author         string
	Body           string
	IsDraft        bool
	WorkItemID     string // "" means unresolved
	Pipeline       *Pipeline
	ReviewID       string // "" means null
}

// Clone returns a deep copy.
func (r *Revision) Clone() *Revision {
	if r == nil {
		return nil
	}
	c := *r
	if r.Pipeline != nil {
		p := *r.Pipeline
		c.Pipeline = &p
	}
	return &c
}

// SpecFrontmatterStatus is the closed set of statuses parsed from a spec's
// YAML frontmatter.
type SpecFrontmatterStatus string

const (
	SpecDraft      SpecFrontmatterStatus = "draft"
	SpecApproved   SpecFrontmatterStatus = "approved"
	SpecDeprecated SpecFrontmatterStatus = "deprecated"
)

// Spec is a markdown design document under the configured specs directory.
type Spec struct {
	FilePath          string
	BlobSHA           string
	FrontmatterStatus SpecFrontmatterStatus
}

func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AgentRole is one of the three agent roles the engine dispatches.
type AgentRole string

const (
	RolePlanner     AgentRole = "planner"
	RoleImplementor AgentRole = "implementor"
	RoleReviewer    AgentRole = "reviewer"
)

// AgentRunStatus is the closed set of states an AgentRun moves through,
// per invariant I3.
type AgentRunStatus string

const (
	RunRequested AgentRunStatus = "requested"
	RunRunning   AgentRunStatus = "running"
	RunCompleted AgentRunStatus = "completed"
	RunFailed    AgentRunStatus = "failed"
	RunTimedOut  AgentRunStatus = "timed-out"
	RunCancelled AgentRunStatus = "cancelled"
)

// Active reports whether the run occupies the role singleton (I1).
func (s AgentRunStatus) Active() bool {
	return s == RunRequested || s == RunRunning
}

// Terminal reports whether s admits no outgoing transitions (I3).
func (s AgentRunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunTimedOut, RunCancelled:
		return true
	default:
		return false
	}
}

// AgentRun records one invocation of an agent.
type AgentRun struct {
	Role        AgentRole
	SessionID   string
	StartedAt   time.Time
	LogFilePath string // "" means null
	Err         string // "" means null
	Status      AgentRunStatus

	// Planner-specific.
	SpecPaths []string

	// Implementor-specific.
	WorkItemID string
	BranchName string

	// Reviewer-specific (also uses WorkItemID above).
	RevisionID string
}

func (a *AgentRun) Clone() *AgentRun {
	if a == nil {
		return nil
	}
	c := *a
	c.SpecPaths = append([]string(nil), a.SpecPaths...)
	return &c
}

// ErrorEntry is one record in the bounded error ring (I4).
type ErrorEntry struct {
	Event     string
	Timestamp time.Time
}

// MaxErrors bounds the error ring (I4).
const MaxErrors = 50

// EngineState is the authoritative in-memory snapshot (§3 EngineState).
// Every field is replaced wholesale on mutation (I5); EngineState itself
// is treated as immutable once published — callers clone before editing.
type EngineState struct {
	WorkItems       map[string]*WorkItem
	Revisions       map[string]*Revision
	Specs           map[string]*Spec
	AgentRuns       map[string]*AgentRun
	Errors          []ErrorEntry
	LastPlannedSHAs map[string]string
}

// Empty returns the zero EngineState with initialized maps.
func Empty() *EngineState {
	return &EngineState{
		WorkItems:       map[string]*WorkItem{},
		Revisions:       map[string]*Revision{},
		Specs:           map[string]*Spec{},
		AgentRuns:       map[string]*AgentRun{},
		Errors:          nil,
		LastPlannedSHAs: map[string]string{},
	}
}

// shallowCopyMaps returns a new EngineState sharing no mutable maps with
// s, but sharing the entity pointers themselves (copy-on-write: callers
// that mutate an entity must Clone it into the new map first).
func (s *EngineState) shallowCopyMaps() *EngineState {
	n := &EngineState{
		WorkItems:       make(map[string]*WorkItem, len(s.WorkItems)),
		Revisions:       make(map[string]*Revision, len(s.Revisions)),
		Specs:           make(map[string]*Spec, len(s.Specs)),
		AgentRuns:       make(map[string]*AgentRun, len(s.AgentRuns)),
		Errors:          append([]ErrorEntry(nil), s.Errors...),
		LastPlannedSHAs: make(map[string]string, len(s.LastPlannedSHAs)),
	}
	for k, v := range s.WorkItems {
		n.WorkItems[k] = v
	}
	for k, v := range s.Revisions {
		n.Revisions[k] = v
	}
	for k, v := range s.Specs {
		n.Specs[k] = v
	}
	for k, v := range s.AgentRuns {
		n.AgentRuns[k] = v
	}
	for k, v := range s.LastPlannedSHAs {
		n.LastPlannedSHAs[k] = v
	}
	return n
}

// WithWorkItem returns a copy of s with id upserted to item (or removed
// if item is nil).
func (s *EngineState) WithWorkItem(id string, item *WorkItem) *EngineState {
	n := s.shallowCopyMaps()
	if item == nil {
		delete(n.WorkItems, id)
	} else {
		n.WorkItems[id] = item
	}
	return n
}

// WithRevision returns a copy of s with id upserted to rev (or removed if
// rev is nil).
func (s *EngineState) WithRevision(id string, rev *Revision) *EngineState {
	n := s.shallowCopyMaps()
	if rev == nil {
		delete(n.Revisions, id)
	} else {
		n.Revisions[id] = rev
	}
	return n
}

// WithSpec returns a copy of s with filePath upserted to spec (or removed
// if spec is nil).
func (s *EngineState) WithSpec(filePath string, spec *Spec) *EngineState {
	n := s.shallowCopyMaps()
	if spec == nil {
		delete(n.Specs, filePath)
	} else {
		n.Specs[filePath] = spec
	}
	return n
}

// WithAgentRun returns a copy of s with sessionID upserted to run.
func (s *EngineState) WithAgentRun(sessionID string, run *AgentRun) *EngineState {
	n := s.shallowCopyMaps()
	n.AgentRuns[sessionID] = run
	return n
}

// WithLastPlannedSHA returns a copy of s with lastPlannedSHAs[path] set.
func (s *EngineState) WithLastPlannedSHA(path, blobSHA string) *EngineState {
	n := s.shallowCopyMaps()
	n.LastPlannedSHAs[path] = blobSHA
	return n
}

// WithError appends entry to the error ring, evicting the eldest once the
// ring exceeds MaxErrors (I4).
func (s *EngineState) WithError(entry ErrorEntry) *EngineState {
	n := s.shallowCopyMaps()
	n.Errors = append(n.Errors, entry)
	if len(n.Errors) > MaxErrors {
		n.Errors = n.Errors[len(n.Errors)-MaxErrors:]
	}
	return n
}

// ActiveRun returns the in-flight (requested/running) run for role, if
// any (I1 — there can be at most one).
func (s *EngineState) ActiveRun(role AgentRole) *AgentRun {
	for _, run := range s.AgentRuns {
		if run.Role == role && run.Status.Active() {
			return run
		}
	}
	return nil
}

// ActiveRunForWorkItem returns the active run touching workItemID, for
// the implementor or reviewer roles (used by orphan recovery, I2).
func (s *EngineState) ActiveRunForWorkItem(workItemID string) *AgentRun {
	for _, run := range s.AgentRuns {
		if !run.Status.Active() {
			continue
		}
		if run.Role == RoleImplementor && run.WorkItemID == workItemID {
			return run
		}
		if run.Role == RoleReviewer && run.WorkItemID == workItemID {
			return run
		}
	}
	return nil
}

// Dependents returns every WorkItem whose BlockedBy contains id.
func (s *EngineState) Dependents(id string) []*WorkItem {
	var out []*WorkItem
	for _, w := range s.WorkItems {
		for _, b := range w.BlockedBy {
			if b == id {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// BlockersResolved reports whether every entry in blockedBy exists in
// state with a terminal status.
func (s *EngineState) BlockersResolved(blockedBy []string) bool {
	for _, id := range blockedBy {
		w, ok := s.WorkItems[id]
		if !ok || !w.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// ApprovedSpecPaths returns the file paths of every spec currently
// recorded with frontmatter status "approved", sorted for determinism.
func (s *EngineState) ApprovedSpecPaths() []string {
	var paths []string
	for path, spec := range s.Specs {
		if spec.FrontmatterStatus == SpecApproved {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

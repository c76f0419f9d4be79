package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zgeoff/decree/internal/bashguard"
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/provider"
	"github.com/zgeoff/decree/internal/worktree"
)

// PreToolUseHook is called before a Bash tool invocation is allowed to
// run; returning allowed=false rejects the tool-use with reason.
type PreToolUseHook func(toolName, input string) (allowed bool, reason string)

// SessionMessageKind is the closed set of message types a SessionRunner
// yields. Only Text is surfaced to the caller's output stream; the rest
// are logged (§4.H step 5).
type SessionMessageKind string

const (
	MessageSystemInit    SessionMessageKind = "system_init"
	MessageText          SessionMessageKind = "text"
	MessageToolUse       SessionMessageKind = "tool_use"
	MessageToolProgress  SessionMessageKind = "tool_progress"
	MessageStructuredOut SessionMessageKind = "structured_output"
)

// SessionMessage is one message a SessionRunner yields.
type SessionMessage struct {
	Kind             SessionMessageKind
	Text             string
	ToolName         string
	StructuredOutput json.RawMessage
}

// SessionRequest configures one SessionRunner invocation.
type SessionRequest struct {
	WorkDir         string
	SystemPrompt    string
	UserPrompt      string
	Tools           []string
	DisallowedTools []string
	Model           Model
	MaxTurns        int
	PreToolUse      PreToolUseHook
}

// SessionRunner is the concrete LLM SDK wrapper the adapter drives. It is
// an external collaborator (spec.md §1): the engine depends only on this
// interface.
type SessionRunner interface {
	Run(ctx context.Context, req SessionRequest) (<-chan SessionMessage, error)
}

// StateReader is the minimal read access to the engine's state the
// adapter needs to assemble trigger prompts (§4.H step 2); satisfied by
// *state.Store.GetState.
type StateReader func() *domain.EngineState

// DefaultAdapter implements Adapter (§4.H) against a SessionRunner,
// coordinating worktree setup, prompt assembly, structured-output
// validation, patch extraction, and logging.
type DefaultAdapter struct {
	repoRoot      string
	defaultBranch string
	maxDuration   time.Duration
	logger        *slog.Logger

	runner        SessionRunner
	schemas       *schemas
	worktree      *worktree.Manager
	sessionLogger *SessionLogger // nil disables per-session logging

	getState       StateReader
	specs          provider.SpecReader
	revisions      provider.RevisionReader
	contextPaths   map[string]string // configured extra context files, appended verbatim

	mu        sync.Mutex
	cancelFns map[string]context.CancelFunc
}

// NewDefaultAdapter constructs a DefaultAdapter.
func NewDefaultAdapter(
	repoRoot, defaultBranch string,
	maxDuration time.Duration,
	runner SessionRunner,
	getState StateReader,
	specs provider.SpecReader,
	revisions provider.RevisionReader,
	contextPaths map[string]string,
	sessionLogger *SessionLogger,
	logger *slog.Logger,
) (*DefaultAdapter, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile structured-output schemas: %w", err)
	}
	return &DefaultAdapter{
		repoRoot:      repoRoot,
		defaultBranch: defaultBranch,
		maxDuration:   maxDuration,
		logger:        logger,
		runner:        runner,
		schemas:       s,
		worktree:      worktree.New(repoRoot, defaultBranch, logger),
		sessionLogger: sessionLogger,
		getState:      getState,
		specs:         specs,
		revisions:     revisions,
		contextPaths:  contextPaths,
		cancelFns:     map[string]context.CancelFunc{},
	}, nil
}

// StartAgent implements Adapter.
func (a *DefaultAdapter) StartAgent(ctx context.Context, params StartParams) (<-chan Event, error) {
	out := make(chan Event, 16)

	sessCtx, cancel := context.WithCancel(ctx)
	if a.maxDuration > 0 {
		var timeoutCancel context.CancelFunc
		sessCtx, timeoutCancel = context.WithTimeout(sessCtx, a.maxDuration)
		orig := cancel
		cancel = func() { timeoutCancel(); orig() }
	}
	a.mu.Lock()
	a.cancelFns[params.SessionID] = cancel
	a.mu.Unlock()

	go a.run(sessCtx, params, out)

	return out, nil
}

// CancelAgent implements Adapter.
func (a *DefaultAdapter) CancelAgent(sessionID string) {
	a.mu.Lock()
	cancel, ok := a.cancelFns[sessionID]
	delete(a.cancelFns, sessionID)
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

func (a *DefaultAdapter) run(ctx context.Context, params StartParams, out chan<- Event) {
	defer close(out)
	defer func() {
		a.mu.Lock()
		delete(a.cancelFns, params.SessionID)
		a.mu.Unlock()
	}()

	systemPrompt, userPrompt, branchName, err := a.buildPrompt(ctx, params)
	if err != nil {
		out <- Event{Kind: EventFailed, FailReason: "error", Err: fmt.Errorf("assemble prompt: %w", err)}
		return
	}

	workDir := a.repoRoot
	if params.Role == domain.RoleImplementor {
		workDir, err = a.worktree.Create(ctx, branchName)
		if err != nil {
			out <- Event{Kind: EventFailed, FailReason: "error", Err: fmt.Errorf("worktree setup: %w", err)}
			return
		}
		defer a.worktree.Remove(context.Background(), branchName)
	}

	def, err := LoadDefinition(a.repoRoot, params.Role)
	if err != nil {
		out <- Event{Kind: EventFailed, FailReason: "error", Err: err}
		return
	}

	var log *sessionLogWriter
	if a.sessionLogger != nil {
		log, err = a.sessionLogger.Open(params.Role, params.SessionID, params.WorkItemID)
		if err != nil {
			a.logger.Warn("session log open failed, logging disabled", "session", params.SessionID, "error", err)
			log = nil
		} else {
			defer log.Close()
			log.Header(params.Role, params.SessionID)
		}
	}

	hook := func(toolName, input string) (bool, string) {
		if toolName != "Bash" {
			return true, ""
		}
		r := bashguard.Validate(input)
		return r.Allowed, r.Reason
	}

	msgs, err := a.runner.Run(ctx, SessionRequest{
		WorkDir:         workDir,
		SystemPrompt:    systemPrompt,
		UserPrompt:      userPrompt,
		Tools:           def.Tools,
		DisallowedTools: def.DisallowedTools,
		Model:           def.Model,
		MaxTurns:        def.MaxTurns,
		PreToolUse:      hook,
	})
	if err != nil {
		if log != nil {
			log.Footer("failed")
		}
		out <- Event{Kind: EventFailed, FailReason: "error", Err: err}
		return
	}

	started := false
	var structured json.RawMessage

	for msg := range msgs {
		if log != nil {
			log.Entry(msg)
		}
		if !started {
			started = true
			logPath := ""
			if log != nil {
				logPath = log.Path()
			}
			out <- Event{Kind: EventStarted, LogFilePath: logPath}
		}
		switch msg.Kind {
		case MessageText:
			out <- Event{Kind: EventChunk, Chunk: msg.Text}
		case MessageStructuredOut:
			structured = msg.StructuredOutput
		}
	}

	if ctx.Err() != nil {
		reason := "cancelled"
		if ctx.Err() == context.DeadlineExceeded {
			reason = "timeout"
		}
		if log != nil {
			log.Footer(reason)
		}
		out <- Event{Kind: EventFailed, FailReason: reason, Err: ctx.Err()}
		return
	}

	result, err := a.assembleResult(ctx, params, workDir, structured)
	if err != nil {
		if log != nil {
			log.Footer("failed")
		}
		out <- Event{Kind: EventFailed, FailReason: "error", Err: err}
		return
	}

	if log != nil {
		log.Footer("completed")
	}
	out <- Event{Kind: EventResult, Result: result}
}

// buildPrompt assembles the role-specific trigger prompt (§4.H step 2)
// and, for the implementor, the branch name its worktree is rooted on.
func (a *DefaultAdapter) buildPrompt(ctx context.Context, params StartParams) (systemPrompt, userPrompt, branchName string, err error) {
	state := a.getState()

	var body string
	switch params.Role {
	case domain.RolePlanner:
		specs, err := a.buildChangedSpecs(ctx, params.SpecPaths, state)
		if err != nil {
			return "", "", "", err
		}
		items := make([]*domain.WorkItem, 0, len(state.WorkItems))
		for _, w := range state.WorkItems {
			items = append(items, w)
		}
		body = BuildPlannerPrompt(specs, items)

	case domain.RoleImplementor:
		w, ok := state.WorkItems[params.WorkItemID]
		if !ok {
			return "", "", "", fmt.Errorf("work item %s not found", params.WorkItemID)
		}
		branchName = "decree/" + w.ID
		c := ImplementorContext{WorkItem: w, IncludeCISect: true}
		if w.LinkedRevision != "" {
			if err := a.fillRevisionContext(ctx, w.LinkedRevision, state, &c); err != nil {
				return "", "", "", err
			}
		}
		body = BuildImplementorPrompt(c)

	case domain.RoleReviewer:
		w, ok := state.WorkItems[params.WorkItemID]
		if !ok {
			return "", "", "", fmt.Errorf("work item %s not found", params.WorkItemID)
		}
		c := ImplementorContext{WorkItem: w, IncludeCISect: false}
		if err := a.fillRevisionContext(ctx, params.RevisionID, state, &c); err != nil {
			return "", "", "", err
		}
		body = BuildImplementorPrompt(c)

	default:
		return "", "", "", fmt.Errorf("unknown role %q", params.Role)
	}

	def, err := LoadDefinition(a.repoRoot, params.Role)
	if err != nil {
		return "", "", "", err
	}
	body = AppendContextFiles(body, a.contextPaths)

	return def.SystemPrompt, body, branchName, nil
}

func (a *DefaultAdapter) buildChangedSpecs(ctx context.Context, paths []string, state *domain.EngineState) ([]ChangedSpec, error) {
	out := make([]ChangedSpec, 0, len(paths))
	for _, path := range paths {
		spec, ok := state.Specs[path]
		if !ok {
			continue
		}
		priorSHA := state.LastPlannedSHAs[path]
		if priorSHA == "" {
			content, err := a.specs.GetSpecContent(ctx, spec.BlobSHA)
			if err != nil {
				return nil, fmt.Errorf("get spec content %s: %w", path, err)
			}
			out = append(out, ChangedSpec{FilePath: path, Added: true, Content: content})
			continue
		}
		diff, err := a.diffBlobs(ctx, priorSHA, spec.BlobSHA, path)
		if err != nil {
			return nil, fmt.Errorf("diff spec %s: %w", path, err)
		}
		out = append(out, ChangedSpec{FilePath: path, Added: false, Diff: diff})
	}
	return out, nil
}

func (a *DefaultAdapter) diffBlobs(ctx context.Context, oldSHA, newSHA, path string) (string, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "diff", oldSHA, newSHA, "--", path)
	cmd.Dir = a.repoRoot
	cmd.Stdout = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (a *DefaultAdapter) fillRevisionContext(ctx context.Context, revisionID string, state *domain.EngineState, c *ImplementorContext) error {
	rev, ok := state.Revisions[revisionID]
	if !ok {
		return fmt.Errorf("revision %s not found", revisionID)
	}
	c.Revision = rev

	files, err := a.revisions.GetRevisionFiles(ctx, revisionID)
	if err != nil {
		return fmt.Errorf("get revision files: %w", err)
	}
	c.RevisionFiles = files

	history, err := a.revisions.GetReviewHistory(ctx, revisionID)
	if err != nil {
		return fmt.Errorf("get review history: %w", err)
	}
	c.ReviewHistory = history

	if rev.Pipeline != nil && rev.Pipeline.Status == domain.PipelineFailure {
		c.CIFailed = true
		c.CIReason = rev.Pipeline.Reason
		c.CIURL = rev.Pipeline.URL
	}
	return nil
}

// assembleResult validates structured output against the role's schema
// and, for a completed implementor run, extracts the worktree's patch
// against the default branch (§4.H step 7).
func (a *DefaultAdapter) assembleResult(ctx context.Context, params StartParams, workDir string, structured json.RawMessage) (*Result, error) {
	if len(structured) == 0 {
		return nil, fmt.Errorf("session produced no structured output")
	}

	schema := a.schemas.forRole(params.Role)
	var doc any
	if err := json.Unmarshal(structured, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal structured output: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("structured output failed schema validation: %w", err)
	}

	switch params.Role {
	case domain.RolePlanner:
		return a.parsePlannerResult(structured)
	case domain.RoleImplementor:
		return a.parseImplementorResult(ctx, structured, workDir)
	case domain.RoleReviewer:
		return a.parseReviewerResult(structured)
	default:
		return nil, fmt.Errorf("unknown role %q", params.Role)
	}
}

func (a *DefaultAdapter) parsePlannerResult(raw json.RawMessage) (*Result, error) {
	var payload struct {
		Create []command.PlannerCreate `json:"create"`
		Close  []string                `json:"close"`
		Update []command.PlannerUpdate `json:"update"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal planner result: %w", err)
	}
	return &Result{Role: domain.RolePlanner, Create: payload.Create, Close: payload.Close, Update: payload.Update}, nil
}

func (a *DefaultAdapter) parseImplementorResult(ctx context.Context, raw json.RawMessage, workDir string) (*Result, error) {
	var payload struct {
		Outcome string `json:"outcome"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal implementor result: %w", err)
	}

	result := &Result{Role: domain.RoleImplementor, Outcome: payload.Outcome, Summary: payload.Summary}
	if payload.Outcome != "completed" {
		return result, nil
	}

	patch, err := extractPatch(ctx, workDir, a.defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("extract patch: %w", err)
	}
	if strings.TrimSpace(patch) == "" {
		return nil, fmt.Errorf("implementor reported completed but produced an empty diff")
	}
	result.Patch = patch
	return result, nil
}

func (a *DefaultAdapter) parseReviewerResult(raw json.RawMessage) (*Result, error) {
	var payload struct {
		Review struct {
			Verdict  string `json:"verdict"`
			Summary  string `json:"summary"`
			Comments []struct {
				Path string `json:"path"`
				Line *int   `json:"line"`
				Body string `json:"body"`
			} `json:"comments"`
		} `json:"review"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal reviewer result: %w", err)
	}
	comments := make([]command.ReviewComment, len(payload.Review.Comments))
	for i, c := range payload.Review.Comments {
		comments[i] = command.ReviewComment{Path: c.Path, Line: c.Line, Body: c.Body}
	}
	return &Result{
		Role:     domain.RoleReviewer,
		Verdict:  payload.Review.Verdict,
		Summary:  payload.Review.Summary,
		Comments: comments,
	}, nil
}

// extractPatch returns a unified diff of workDir against defaultBranch,
// including untracked files.
func extractPatch(ctx context.Context, workDir, defaultBranch string) (string, error) {
	add := exec.CommandContext(ctx, "git", "add", "-A")
	add.Dir = workDir
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add -A: %w: %s", err, out)
	}

	var buf bytes.Buffer
	diff := exec.CommandContext(ctx, "git", "diff", "--cached", "origin/"+defaultBranch, "--")
	diff.Dir = workDir
	diff.Stdout = &buf
	if err := diff.Run(); err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return buf.String(), nil
}

// NewSessionID generates a fresh session identifier (google/uuid, like
// the rest of the tree's entity IDs).
func NewSessionID() string {
	return uuid.NewString()
}

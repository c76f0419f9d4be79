// Package agent implements the agent runtime adapter (§4.H): worktree
// setup, trigger-prompt assembly, session streaming, structured-output
// validation, patch extraction, and per-session logging.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
)

// StartParams carries the per-role parameters the executor supplies when
// requesting an agent run.
type StartParams struct {
	Role       domain.AgentRole
	SessionID  string
	SpecPaths  []string // planner
	WorkItemID string   // implementor, reviewer
	RevisionID string   // reviewer
}

// EventKind is the closed set of events a running session streams back to
// the executor.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventChunk   EventKind = "chunk"
	EventResult  EventKind = "result"
	EventFailed  EventKind = "failed"
)

// Event is one message on a session's output channel. The design note in
// §9 maps the source's async-iterable push/resolve onto send/close on
// this channel: the adapter closes it after emitting exactly one of
// EventResult or EventFailed.
type Event struct {
	Kind        EventKind
	LogFilePath string // set on EventStarted
	Chunk       string // set on EventChunk
	Result      *Result
	FailReason  string // "error" | "timeout" | "cancelled"
	Err         error
}

// Result is the parsed, schema-validated structured output of a session,
// carrying only the fields relevant to its role.
type Result struct {
	Role domain.AgentRole

	// Planner.
	Create []command.PlannerCreate
	Close  []string
	Update []command.PlannerUpdate

	// Implementor.
	Outcome string // "completed" | "blocked" | "validation-failure"
	Summary string
	Patch   string

	// Reviewer.
	Verdict  string // "approve" | "needs-changes"
	Comments []command.ReviewComment
}

// Adapter spawns and controls agent sessions. The executor owns the
// *Requested/*Started event boundary: StartAgent itself performs no
// engine-visible side effect until its returned channel yields an
// EventStarted.
type Adapter interface {
	StartAgent(ctx context.Context, params StartParams) (<-chan Event, error)
	CancelAgent(sessionID string)
}

// schemas holds the compiled structured-output schema for each role,
// built once at adapter construction per §9 ("the schema for each
// agent's structured output lives alongside the adapter").
type schemas struct {
	planner     *jsonschema.Schema
	implementor *jsonschema.Schema
	reviewer    *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	compile := func(name string, raw []byte) (*jsonschema.Schema, error) {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", name, err)
		}
		return c.Compile(name)
	}

	planner, err := compile("planner.json", plannerSchemaJSON)
	if err != nil {
		return nil, err
	}
	implementor, err := compile("implementor.json", implementorSchemaJSON)
	if err != nil {
		return nil, err
	}
	reviewer, err := compile("reviewer.json", reviewerSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &schemas{planner: planner, implementor: implementor, reviewer: reviewer}, nil
}

func (s *schemas) forRole(role domain.AgentRole) *jsonschema.Schema {
	switch role {
	case domain.RolePlanner:
		return s.planner
	case domain.RoleImplementor:
		return s.implementor
	case domain.RoleReviewer:
		return s.reviewer
	default:
		return nil
	}
}

var plannerSchemaJSON = []byte(`{
  "type": "object",
  "required": ["role", "create", "close", "update"],
  "properties": {
    "role": {"const": "planner"},
    "create": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tempID", "title", "body"],
        "properties": {
          "tempID": {"type": "string"},
          "title": {"type": "string"},
          "body": {"type": "string"},
          "labels": {"type": "array", "items": {"type": "string"}},
          "blockedBy": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "close": {"type": "array", "items": {"type": "string"}},
    "update": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["workItemID"],
        "properties": {
          "workItemID": {"type": "string"},
          "body": {"type": ["string", "null"]},
          "labels": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    }
  }
}`)

var implementorSchemaJSON = []byte(`{
  "type": "object",
  "required": ["role", "outcome", "summary"],
  "properties": {
    "role": {"const": "implementor"},
    "outcome": {"enum": ["completed", "blocked", "validation-failure"]},
    "summary": {"type": "string"}
  }
}`)

var reviewerSchemaJSON = []byte(`{
  "type": "object",
  "required": ["role", "review"],
  "properties": {
    "role": {"const": "reviewer"},
    "review": {
      "type": "object",
      "required": ["verdict", "summary", "comments"],
      "properties": {
        "verdict": {"enum": ["approve", "needs-changes"]},
        "summary": {"type": "string"},
        "comments": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["path", "body"],
            "properties": {
              "path": {"type": "string"},
              "line": {"type": ["integer", "null"]},
              "body": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`)

// Package handlers implements the pure (event, state) -> []command
// functions described in the specification's handler table. Each handler
// lives in its own file; ordering among handlers never affects the
// commands produced (spec.md P5), so All simply concatenates them.
package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// Handler derives zero or more commands from an event against the state
// it was applied to. Handlers never perform I/O.
type Handler func(ev event.Event, state *domain.EngineState) []command.Command

// All is the full, order-independent set of handlers the event loop
// runs for every event.
var All = []Handler{
	Planning,
	Readiness,
	DependencyResolution,
	Implementation,
	Review,
	OrphanRecovery,
	UserDispatch,
}

// Run executes every handler against ev and state, concatenating their
// commands in handler-list order. The order of the concatenated slice is
// not semantically meaningful (P5); callers must not rely on it beyond
// determinism for logging/testing.
func Run(ev event.Event, state *domain.EngineState) []command.Command {
	var out []command.Command
	for _, h := range All {
		out = append(out, h(ev, state)...)
	}
	return out
}

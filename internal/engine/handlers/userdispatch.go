package handlers

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/command"
	"github.com/zgeoff/decree/internal/engine/event"
)

// UserDispatch translates the three user-originated events into the same
// commands the automatic handlers would have produced.
func UserDispatch(ev event.Event, state *domain.EngineState) []command.Command {
	switch ev.Kind() {
	case event.KindUserRequestedImplementorRun:
		e := ev.(event.UserRequestedImplementorRun)
		return []command.Command{command.RequestImplementorRun{WorkItemID: e.WorkItemID}}

	case event.KindUserCancelledRun:
		e := ev.(event.UserCancelledRun)
		run, ok := state.AgentRuns[e.SessionID]
		if !ok {
			return nil
		}
		switch run.Role {
		case domain.RolePlanner:
			return []command.Command{command.CancelPlannerRun{SessionID: e.SessionID}}
		case domain.RoleImplementor:
			return []command.Command{command.CancelImplementorRun{SessionID: e.SessionID}}
		case domain.RoleReviewer:
			return []command.Command{command.CancelReviewerRun{SessionID: e.SessionID}}
		}
		return nil

	case event.KindUserTransitionedStatus:
		e := ev.(event.UserTransitionedStatus)
		return []command.Command{command.TransitionWorkItem{WorkItemID: e.WorkItemID, NewStatus: e.NewStatus}}

	default:
		return nil
	}
}

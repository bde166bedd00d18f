package session

import "time"

// GuardAction is the single observable decision a route guard can make.
type GuardAction string

const (
	ActionRender   GuardAction = "render"
	ActionLoading  GuardAction = "loading"
	ActionRedirect GuardAction = "redirect"
)

// Decision pairs the action with its redirect target when applicable.
type Decision struct {
	Action GuardAction
	Target string
}

// Route classifies the request being guarded.
type Route struct {
	Path   string
	Public bool
}

// Evaluate is a pure function of the session snapshot, the grace window, and
// the route. Rules in priority order:
//
//  1. public routes always render regardless of state
//  2. verifying or logging-out renders the loading placeholder
//  3. unauthenticated outside the grace window redirects to login
//  4. unauthenticated inside the grace window keeps loading: a login just
//     happened and its confirmation has not landed yet
//  5. authenticated renders
//
// The grace window's duration is a hard ceiling; once it elapses rule 3
// applies even if confirmation never arrived.
func Evaluate(snap Snapshot, grace GraceWindow, route Route, loginPath string, now time.Time) Decision {
	if route.Public {
		return Decision{Action: ActionRender}
	}

	switch snap.Phase {
	case PhaseUninitialized, PhaseVerifying, PhaseLoggingOut:
		return Decision{Action: ActionLoading}
	case PhaseAuthenticated:
		return Decision{Action: ActionRender}
	case PhaseUnauthenticated:
		if grace.ActiveAt(now) {
			return Decision{Action: ActionLoading}
		}
		return Decision{Action: ActionRedirect, Target: loginPath}
	default:
		return Decision{Action: ActionLoading}
	}
}

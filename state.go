package session

import (
	"time"

	"github.com/google/uuid"
)

// Phase identifies the current position of the session state machine.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseVerifying       Phase = "verifying"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseLoggingOut      Phase = "logging_out"
)

// Reason explains why the machine settled in the unauthenticated phase.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNoSession Reason = "no_session"
	ReasonRejected  Reason = "rejected"
	ReasonExhausted Reason = "exhausted"
	ReasonLoggedOut Reason = "logged_out"
)

// UserProfile is the backend-owned identity record. The client treats it as a
// read-only cache entry, never a source of truth.
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Clone returns a copy so subscribers cannot mutate the machine's record.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// Snapshot is an immutable view of the machine's state at one transition.
type Snapshot struct {
	Phase      Phase
	User       *UserProfile
	Attempt    int
	StartedAt  time.Time
	VerifiedAt time.Time
	Reason     Reason
	Epoch      uint64
}

// Authenticated reports whether the snapshot carries a confirmed or optimistic
// identity.
func (s Snapshot) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil
}

// LogoutFlag is the durable "logout in progress" marker. It survives a full
// page reload (process restart) so a freshly initialized machine cannot
// silently re-authenticate from stale cache right after a logout redirect.
type LogoutFlag struct {
	ID        uuid.UUID `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// NewLogoutFlag stamps a fresh marker.
func NewLogoutFlag(now time.Time) LogoutFlag {
	return LogoutFlag{ID: uuid.New(), StartedAt: now}
}

// FreshAt reports whether the flag is still meaningful. Flags older than ttl
// are treated as abandoned and cleared by the next Start.
func (f LogoutFlag) FreshAt(now time.Time, ttl time.Duration) bool {
	if f.StartedAt.IsZero() {
		return false
	}
	return now.Sub(f.StartedAt) < ttl
}

// phaseTransitions is the allowed transition graph. Logout pre-empts every
// phase, including an in-flight verification.
var phaseTransitions = map[Phase]map[Phase]struct{}{
	PhaseUninitialized: {
		PhaseVerifying:       {},
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
		PhaseLoggingOut:      {},
	},
	PhaseVerifying: {
		PhaseVerifying:       {},
		PhaseAuthenticated:   {},
		PhaseUnauthenticated: {},
		PhaseLoggingOut:      {},
	},
	PhaseAuthenticated: {
		PhaseVerifying:       {},
		PhaseUnauthenticated: {},
		PhaseLoggingOut:      {},
	},
	PhaseUnauthenticated: {
		PhaseVerifying:       {},
		PhaseAuthenticated:   {},
		PhaseLoggingOut:      {},
	},
	PhaseLoggingOut: {
		PhaseUnauthenticated: {},
	},
}

func canTransition(from, to Phase) bool {
	if allowed, ok := phaseTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

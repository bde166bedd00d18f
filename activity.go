package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "session.login.success"
	ActivityEventLoginFailure     ActivityEventType = "session.login.failure"
	ActivityEventVerifyConfirmed  ActivityEventType = "session.verify.confirmed"
	ActivityEventVerifyRejected   ActivityEventType = "session.verify.rejected"
	ActivityEventVerifyExhausted  ActivityEventType = "session.verify.exhausted"
	ActivityEventVerifyDiscarded  ActivityEventType = "session.verify.discarded"
	ActivityEventLogoutStarted    ActivityEventType = "session.logout.started"
	ActivityEventLogoutCompleted  ActivityEventType = "session.logout.completed"
	ActivityEventLogoutServerFail ActivityEventType = "session.logout.server_failure"
	ActivityEventPhaseChanged     ActivityEventType = "session.phase.changed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromPhase  Phase
	ToPhase    Phase
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

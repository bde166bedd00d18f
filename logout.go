package session

import (
	"context"
	"time"
)

// CoordinatorOption customizes Coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger overrides the logger.
func WithCoordinatorLogger(logger Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCoordinatorActivitySink sets the ActivitySink for logout events.
func WithCoordinatorActivitySink(sink ActivitySink) CoordinatorOption {
	return func(c *Coordinator) {
		c.sink = normalizeActivitySink(sink)
	}
}

// WithCoordinatorClock injects a custom clock (useful for tests).
func WithCoordinatorClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// Coordinator runs the logout critical section. The ordering is load-bearing:
// no other component may observe a confirmed profile between the LoggingOut
// entry and the cache purge, and the durable flag must be in place before the
// server call so a concurrent reload cannot race back into authenticated.
type Coordinator struct {
	machine *Machine
	api     IdentityAPI
	store   Store
	logger  Logger
	sink    ActivitySink
	now     func() time.Time
}

// NewCoordinator wires a coordinator over the machine's store and identity
// API. NewMachine builds one automatically; construct directly only when the
// redirect handoff needs custom options.
func NewCoordinator(machine *Machine, api IdentityAPI, store Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		machine: machine,
		api:     api,
		store:   store,
		logger:  defLogger{},
		sink:    noopActivitySink{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Logout completes the full critical section and clears the flag: no redirect
// handoff, the machine keeps running in this process.
func (c *Coordinator) Logout(ctx context.Context) error {
	return c.logout(ctx, false)
}

// LogoutForRedirect completes the critical section but leaves the flag set so
// the next page load's bootstrap consumes it exactly once. Use when the
// caller is about to issue a full-page redirect.
func (c *Coordinator) LogoutForRedirect(ctx context.Context) error {
	return c.logout(ctx, true)
}

func (c *Coordinator) logout(ctx context.Context, handoff bool) error {
	// Step 1: synchronous phase flip; in-flight verification results are now
	// stale by epoch.
	if err := c.machine.beginLogout(ctx); err != nil {
		return err
	}

	c.recordActivity(ctx, ActivityEvent{EventType: ActivityEventLogoutStarted})

	// Step 2: durable flag before anything slow happens.
	flag := NewLogoutFlag(c.now())
	if err := c.store.SetLogoutFlag(ctx, flag); err != nil {
		c.logger.Error("logout flag write failed: %v", err)
	}

	// Step 3: best-effort server-side invalidation. Logout is
	// client-authoritative for UX purposes; a failing backend must not block
	// the local purge.
	if err := c.api.SignOut(ctx, "user_logout"); err != nil {
		c.logger.Warn("server-side logout failed: %v", err)
		c.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLogoutServerFail,
			Metadata:  map[string]any{"error": err.Error()},
		})
	}

	// Step 4: synchronous purge of everything that could reconstruct the
	// session.
	if err := c.store.PurgeSession(ctx); err != nil {
		c.logger.Error("session purge failed: %v", err)
		// Keep the flag: a failed purge plus a reload must still land on the
		// no-resurrection path.
		c.machine.finishLogout(ctx)
		return err
	}

	// Step 5: release the flag, unless a reload is about to consume it.
	if !handoff {
		if err := c.store.ClearLogoutFlag(ctx); err != nil {
			c.logger.Error("logout flag clear failed: %v", err)
		}
	}

	c.machine.finishLogout(ctx)
	c.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogoutCompleted,
		Metadata:  map[string]any{"handoff": handoff},
	})

	return nil
}

func (c *Coordinator) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	sink := normalizeActivitySink(c.sink)
	if err := sink.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink record error: %v", err)
	}
}

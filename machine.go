package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBuffer = 8

// MachineOption customizes machine construction.
type MachineOption func(*Machine)

// WithMachineClock injects a custom clock (useful for tests).
func WithMachineClock(clock func() time.Time) MachineOption {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithMachineLogger overrides the logger.
func WithMachineLogger(logger Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithMachineActivitySink(sink ActivitySink) MachineOption {
	return func(m *Machine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithMachineConfig replaces the default configuration.
func WithMachineConfig(cfg Config) MachineOption {
	return func(m *Machine) {
		if cfg != nil {
			m.cfg = cfg
		}
	}
}

// WithMachineVerifier swaps the default verification client (tests, custom
// transports). If the verifier implements AttemptReporter the machine wires
// its retry listener.
func WithMachineVerifier(v Verifier) MachineOption {
	return func(m *Machine) {
		if v != nil {
			m.verifier = v
		}
	}
}

// WithGracePolicy overrides the grace window policy derived from Config.
func WithGracePolicy(p GracePolicy) MachineOption {
	return func(m *Machine) {
		m.gracePolicy = p
	}
}

// Machine owns the authoritative session state. It is the only component
// allowed to mutate the Store's cache entries (the Coordinator borrows that
// right during the logout critical section).
type Machine struct {
	mu          sync.Mutex
	api         IdentityAPI
	store       Store
	verifier    Verifier
	coordinator *Coordinator
	cfg         Config
	gracePolicy GracePolicy
	logger      Logger
	sink        ActivitySink
	now         func() time.Time

	phase      Phase
	user       *UserProfile
	attempt    int
	startedAt  time.Time
	verifiedAt time.Time
	reason     Reason
	epoch      uint64
	grace      GraceWindow

	verifyCancel context.CancelFunc
	subscribers  map[uuid.UUID]chan Snapshot
	closed       bool
	wg           sync.WaitGroup
}

var _ SessionMachine = (*Machine)(nil)

// NewMachine returns a machine in the uninitialized phase. Call Start to
// bootstrap the first verification cycle.
func NewMachine(api IdentityAPI, store Store, opts ...MachineOption) *Machine {
	m := &Machine{
		api:         api,
		store:       store,
		cfg:         SimpleConfig{},
		logger:      defLogger{},
		sink:        noopActivitySink{},
		now:         time.Now,
		phase:       PhaseUninitialized,
		subscribers: map[uuid.UUID]chan Snapshot{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.gracePolicy.Duration <= 0 {
		m.gracePolicy = GracePolicy{Duration: m.cfg.GetGraceDuration()}
	}

	if m.verifier == nil {
		m.verifier = NewVerifier(api, m.cfg.GetRetryPolicy(), WithVerifierLogger(m.logger))
	}
	if reporter, ok := m.verifier.(AttemptReporter); ok {
		reporter.SetAttemptListener(m.noteAttempt)
	}

	m.coordinator = NewCoordinator(m, api, store,
		WithCoordinatorLogger(m.logger),
		WithCoordinatorActivitySink(m.sink),
		WithCoordinatorClock(m.now),
	)

	return m
}

// Coordinator exposes the logout critical section for callers that need the
// redirect handoff variant.
func (m *Machine) Coordinator() *Coordinator {
	return m.coordinator
}

// Snapshot returns an immutable view of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Grace returns the current grace window.
func (m *Machine) Grace() GraceWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grace
}

// Subscribe registers a transition listener. The returned cancel func must be
// called on teardown; sends never block the machine (slow subscribers drop).
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.New()
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
}

// Start runs the one-time Uninitialized bootstrap: consume a fresh logout
// flag if present, otherwise paint optimistically from cache and launch the
// background verification cycle.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMachineClosed
	}
	if m.phase != PhaseUninitialized {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": m.phase,
			"to":   PhaseVerifying,
		})
	}

	now := m.now()

	if flag, err := m.store.LogoutFlag(ctx); err != nil {
		m.logger.Warn("logout flag read failed: %v", err)
	} else if flag != nil {
		if flag.FreshAt(now, m.cfg.GetLogoutFlagTTL()) {
			// A logout handed off through a reload: consume the flag exactly
			// once and refuse to resurrect whatever the cache still holds.
			if err := m.store.PurgeSession(ctx); err != nil {
				m.logger.Error("session purge on logout handoff failed: %v", err)
			}
			if err := m.store.ClearLogoutFlag(ctx); err != nil {
				m.logger.Error("logout flag clear failed: %v", err)
			}
			m.applyPhaseLocked(ctx, PhaseUnauthenticated, ReasonLoggedOut)
			return nil
		}
		// Abandoned flag from a crashed logout.
		if err := m.store.ClearLogoutFlag(ctx); err != nil {
			m.logger.Warn("stale logout flag clear failed: %v", err)
		}
	}

	if profile, err := m.store.Profile(ctx); err == nil && profile != nil {
		token, _ := m.store.BearerToken(ctx)
		if err := CheckBearerFreshness(token, now); err == nil {
			m.user = profile
		} else {
			m.logger.Debug("skipping optimistic paint: %v", err)
		}
	}

	m.startVerificationLocked(ctx, now)
	return nil
}

// Login signs in and treats HTTP success as provisional: the machine paints
// the new identity optimistically, arms the grace window, and confirms in the
// background. A definitive rejection during confirmation rolls everything
// back and purges the optimistic cache entry.
func (m *Machine) Login(ctx context.Context, identifier, credential string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	if m.phase == PhaseLoggingOut {
		m.mu.Unlock()
		return ErrLogoutInProgress
	}
	m.mu.Unlock()

	res, err := m.api.SignIn(ctx, SignInPayload{Identifier: identifier, Credential: credential})
	if err != nil {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"identifier": identifier, "error": err.Error()},
		})
		return err
	}
	if res == nil || res.User == nil || res.User.ID == "" {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"identifier": identifier, "error": "empty identity in sign-in response"},
		})
		return ErrSigninUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The world may have moved while the request was in flight.
	if m.closed {
		return ErrMachineClosed
	}
	if m.phase == PhaseLoggingOut {
		return ErrLogoutInProgress
	}

	now := m.now()

	if err := m.store.SaveProfile(ctx, res.User); err != nil {
		m.logger.Error("optimistic profile cache write failed: %v", err)
	}
	if res.Token != "" {
		if err := m.store.SaveBearerToken(ctx, res.Token); err != nil {
			m.logger.Error("bearer fallback cache write failed: %v", err)
		}
	}

	m.cancelVerificationLocked()
	m.user = res.User
	m.verifiedAt = time.Time{}
	m.attempt = 0
	m.startedAt = now
	m.grace = m.gracePolicy.Arm(now)
	m.transitionLocked(ctx, PhaseAuthenticated)

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    res.User.ID,
		Metadata:  map[string]any{"identifier": identifier},
	})

	// Confirm the provisional identity in the background; the grace window
	// masks any false redirect until the round-trip lands.
	m.spawnVerificationLocked(ctx)

	return nil
}

// Verify runs an explicit re-verification and blocks until its cycle settles
// or the context is cancelled. A logout arriving mid-flight wins: the result
// is discarded and the logged-out snapshot is returned.
func (m *Machine) Verify(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrMachineClosed
	}
	if m.phase == PhaseLoggingOut {
		m.mu.Unlock()
		return Snapshot{}, ErrLogoutInProgress
	}

	now := m.now()
	m.cancelVerificationLocked()
	m.epoch++
	cycle := m.epoch
	m.attempt = 0
	m.startedAt = now
	m.transitionLocked(ctx, PhaseVerifying)

	verifyCtx, cancel := context.WithCancel(ctx)
	m.verifyCancel = cancel
	m.mu.Unlock()

	outcome, err := m.verifier.Verify(verifyCtx)
	m.applyOutcome(ctx, cycle, outcome, err)

	if err != nil && ctx.Err() != nil {
		return m.Snapshot(), ctx.Err()
	}
	return m.Snapshot(), nil
}

// Logout runs the full logout critical section. It is always accepted,
// regardless of the current phase, and pre-empts any in-flight verification.
func (m *Machine) Logout(ctx context.Context) error {
	return m.coordinator.Logout(ctx)
}

// Close cancels in-flight verification work and tears down subscribers.
// Pending timers are released through context cancellation so no dangling
// callback can mutate a torn-down machine.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelVerificationLocked()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:      m.phase,
		User:       m.user.Clone(),
		Attempt:    m.attempt,
		StartedAt:  m.startedAt,
		VerifiedAt: m.verifiedAt,
		Reason:     m.reason,
		Epoch:      m.epoch,
	}
}

func (m *Machine) transitionLocked(ctx context.Context, to Phase) {
	from := m.phase
	if from != to && !canTransition(from, to) {
		// Transition table violations are programming errors; log loudly but
		// keep the machine live.
		m.logger.Error("disallowed phase transition %s -> %s", from, to)
	}
	m.phase = to
	// Callers entering PhaseUnauthenticated set m.reason beforehand; every
	// other phase carries no reason.
	if to != PhaseUnauthenticated {
		m.reason = ReasonNone
	}
	m.publishLocked()
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPhaseChanged,
		UserID:    m.userIDLocked(),
		FromPhase: from,
		ToPhase:   to,
	})
}

func (m *Machine) applyPhaseLocked(ctx context.Context, to Phase, reason Reason) {
	m.reason = reason
	m.user = nil
	m.attempt = 0
	m.transitionLocked(ctx, to)
}

func (m *Machine) startVerificationLocked(ctx context.Context, now time.Time) {
	m.epoch++
	m.attempt = 0
	m.startedAt = now
	m.transitionLocked(ctx, PhaseVerifying)
	m.spawnVerificationLocked(ctx)
}

func (m *Machine) spawnVerificationLocked(ctx context.Context) {
	cycle := m.epoch
	verifyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.verifyCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		outcome, err := m.verifier.Verify(verifyCtx)
		m.applyOutcome(verifyCtx, cycle, outcome, err)
	}()
}

func (m *Machine) cancelVerificationLocked() {
	if m.verifyCancel != nil {
		m.verifyCancel()
		m.verifyCancel = nil
	}
	m.epoch++
}

// applyOutcome folds a finished verification cycle back into the machine.
// Between the network call and this continuation any other transition may
// have happened; the epoch decides whether the result is still relevant.
func (m *Machine) applyOutcome(ctx context.Context, cycle uint64, outcome Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || cycle != m.epoch || (m.phase != PhaseVerifying && m.phase != PhaseAuthenticated) {
		m.logger.Debug("discarding verification result for epoch %d (current %d, phase %s)", cycle, m.epoch, m.phase)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventVerifyDiscarded,
			Metadata:  map[string]any{"cycle": cycle, "status": string(outcome.Status)},
		})
		return
	}

	if err != nil {
		// Same-epoch abort: no pre-empting transition claimed the machine,
		// so settle it instead of stranding it mid-verification.
		m.logger.Debug("verification cycle %d aborted: %v", cycle, err)
		if m.verifyCancel != nil {
			m.verifyCancel()
			m.verifyCancel = nil
		}
		m.user = nil
		m.reason = ReasonExhausted
		m.attempt = outcome.Attempts
		m.transitionLocked(ctx, PhaseUnauthenticated)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventVerifyExhausted,
			Metadata:  map[string]any{"attempts": outcome.Attempts, "error": err.Error()},
		})
		return
	}

	now := m.now()
	m.attempt = outcome.Attempts
	if m.verifyCancel != nil {
		m.verifyCancel()
		m.verifyCancel = nil
	}

	switch outcome.Status {
	case OutcomeConfirmed:
		m.user = outcome.User
		m.verifiedAt = now
		m.grace = m.gracePolicy.Arm(now)
		if err := m.store.SaveProfile(ctx, outcome.User); err != nil {
			m.logger.Error("profile cache write failed: %v", err)
		}
		m.transitionLocked(ctx, PhaseAuthenticated)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventVerifyConfirmed,
			UserID:    outcome.User.ID,
			Metadata:  map[string]any{"attempts": outcome.Attempts},
		})

	case OutcomeRejected:
		reason := ReasonRejected
		if m.user == nil {
			reason = ReasonNoSession
		}
		// Roll back the optimistic entry: a definitively rejected identity
		// must not survive in cache.
		if err := m.store.PurgeSession(ctx); err != nil {
			m.logger.Error("session purge after rejection failed: %v", err)
		}
		m.user = nil
		m.reason = reason
		m.transitionLocked(ctx, PhaseUnauthenticated)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventVerifyRejected,
			Metadata:  map[string]any{"attempts": outcome.Attempts, "reason": string(reason)},
		})

	case OutcomeTransient:
		// Exhausted without a definitive answer. The cache survives so a
		// manual retry can still paint optimistically.
		m.user = nil
		m.reason = ReasonExhausted
		m.transitionLocked(ctx, PhaseUnauthenticated)
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventVerifyExhausted,
			Metadata:  map[string]any{"attempts": outcome.Attempts},
		})
	}
}

func (m *Machine) noteAttempt(attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.phase != PhaseVerifying {
		return
	}
	if attempt > 1 {
		m.attempt = attempt
		m.publishLocked()
	}
}

func (m *Machine) publishLocked() {
	snap := m.snapshotLocked()
	for id, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			m.logger.Warn("dropping snapshot for slow subscriber %s", id)
		}
	}
}

func (m *Machine) userIDLocked() string {
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *Machine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	sink := normalizeActivitySink(m.sink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

// beginLogout is step one of the critical section: synchronous phase flip,
// epoch bump (invalidating in-flight verifications), and immediate removal of
// the observable profile. Called by the Coordinator under its ordering.
func (m *Machine) beginLogout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMachineClosed
	}
	if m.phase == PhaseLoggingOut {
		return ErrLogoutInProgress
	}

	m.cancelVerificationLocked()
	m.user = nil
	m.verifiedAt = time.Time{}
	m.attempt = 0
	m.startedAt = m.now()
	m.transitionLocked(ctx, PhaseLoggingOut)
	return nil
}

// finishLogout settles the machine after the purge completed. The grace
// window is disarmed: nothing may mask the post-logout redirect.
func (m *Machine) finishLogout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.grace = GraceWindow{}
	m.reason = ReasonLoggedOut
	m.transitionLocked(ctx, PhaseUnauthenticated)
}

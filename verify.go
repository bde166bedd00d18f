package session

import (
	"context"
)

// OutcomeStatus tags the final answer of a verification cycle.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeRejected  OutcomeStatus = "rejected"
	OutcomeTransient OutcomeStatus = "transient"
)

// Outcome is the only thing a verification cycle surfaces to its caller.
// Transient failures inside the retry loop never escape as errors; they show
// up as OutcomeTransient once the policy exhausts.
type Outcome struct {
	Status   OutcomeStatus
	User     *UserProfile
	Attempts int
}

// Confirmed reports whether the backend vouched for the session.
func (o Outcome) Confirmed() bool {
	return o.Status == OutcomeConfirmed && o.User != nil
}

// VerifierOption customizes Client construction.
type VerifierOption func(*Client)

// WithVerifierLogger overrides the logger.
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVerifierSleeper injects the backoff wait (deterministic clocks in tests).
func WithVerifierSleeper(sleeper Sleeper) VerifierOption {
	return func(c *Client) {
		if sleeper != nil {
			c.sleep = sleeper
		}
	}
}

// AttemptReporter is implemented by verifiers that can announce each retry
// attempt as it starts. The machine uses it to publish Verifying->Verifying
// retry transitions.
type AttemptReporter interface {
	SetAttemptListener(fn func(attempt int))
}

// SetAttemptListener registers a callback invoked before each attempt with
// its 1-based number.
func (c *Client) SetAttemptListener(fn func(attempt int)) {
	c.onAttempt = fn
}

// Client is the default Verifier: it asks the identity backend "who am I
// right now" with bounded retry/backoff.
type Client struct {
	api       IdentityAPI
	policy    RetryPolicy
	sleep     Sleeper
	logger    Logger
	onAttempt func(attempt int)
}

var _ Verifier = (*Client)(nil)

// NewVerifier builds a Client over the given identity API and retry policy.
func NewVerifier(api IdentityAPI, policy RetryPolicy, opts ...VerifierOption) *Client {
	c := &Client{
		api:    api,
		policy: policy.normalize(),
		sleep:  defaultSleeper,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Verify runs the confirmation round-trip. A definitive rejection
// short-circuits: retrying a "you are not logged in" wastes time and risks
// masking a real logout. Context cancellation aborts the wait and returns the
// context error; the caller decides relevance via its epoch.
func (c *Client) Verify(ctx context.Context) (Outcome, error) {
	var attempts int

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if delay := c.policy.Delay(attempt); delay > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return Outcome{Status: OutcomeTransient, Attempts: attempts}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Outcome{Status: OutcomeTransient, Attempts: attempts}, err
		}

		if c.onAttempt != nil {
			c.onAttempt(attempt)
		}
		attempts = attempt

		user, err := c.api.Me(ctx)
		if err == nil {
			return Outcome{Status: OutcomeConfirmed, User: user, Attempts: attempts}, nil
		}

		if IsDefinitiveRejection(err) {
			return Outcome{Status: OutcomeRejected, Attempts: attempts}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Status: OutcomeTransient, Attempts: attempts}, ctxErr
		}

		c.logger.Debug("verification attempt %d/%d failed: %v", attempt, c.policy.MaxAttempts, err)
	}

	return Outcome{Status: OutcomeTransient, Attempts: attempts}, nil
}

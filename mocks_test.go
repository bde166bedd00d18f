package session_test

import (
	"context"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/mock"
)

// MockIdentityAPI implements session.IdentityAPI
type MockIdentityAPI struct {
	mock.Mock
}

func (m *MockIdentityAPI) SignIn(ctx context.Context, payload session.SignInPayload) (*session.SignInResult, error) {
	args := m.Called(ctx, payload)
	res, _ := args.Get(0).(*session.SignInResult)
	return res, args.Error(1)
}

func (m *MockIdentityAPI) SignUp(ctx context.Context, payload session.SignUpPayload) (*session.SignUpResult, error) {
	args := m.Called(ctx, payload)
	res, _ := args.Get(0).(*session.SignUpResult)
	return res, args.Error(1)
}

func (m *MockIdentityAPI) Me(ctx context.Context) (*session.UserProfile, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*session.UserProfile)
	return user, args.Error(1)
}

func (m *MockIdentityAPI) SignOut(ctx context.Context, reason string) error {
	args := m.Called(ctx, reason)
	return args.Error(0)
}

// MockActivitySink implements session.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event session.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockVerifier implements session.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context) (session.Outcome, error) {
	args := m.Called(ctx)
	outcome, _ := args.Get(0).(session.Outcome)
	return outcome, args.Error(1)
}

// gatedVerifier blocks each Verify call until released, so tests control when
// a background confirmation lands.
type gatedVerifier struct {
	release chan struct{}
	outcome session.Outcome
	err     error
}

func newGatedVerifier(outcome session.Outcome) *gatedVerifier {
	return &gatedVerifier{
		release: make(chan struct{}),
		outcome: outcome,
	}
}

func (g *gatedVerifier) Verify(ctx context.Context) (session.Outcome, error) {
	select {
	case <-g.release:
		return g.outcome, g.err
	case <-ctx.Done():
		return session.Outcome{Status: session.OutcomeTransient}, ctx.Err()
	}
}

func (g *gatedVerifier) Release() {
	close(g.release)
}

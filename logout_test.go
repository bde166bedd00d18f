package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/goliatone/go-session/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingStore wraps a real store and logs mutating operations so tests can
// assert ordering.
type recordingStore struct {
	session.Store

	mu       sync.Mutex
	ops      []string
	purgeErr error
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	inner, err := store.NewMemory()
	require.NoError(t, err)
	return &recordingStore{Store: inner}
}

func (r *recordingStore) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingStore) operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recordingStore) Jar() http.CookieJar {
	return r.Store.Jar()
}

func (r *recordingStore) SetLogoutFlag(ctx context.Context, flag session.LogoutFlag) error {
	r.record("set_flag")
	return r.Store.SetLogoutFlag(ctx, flag)
}

func (r *recordingStore) ClearLogoutFlag(ctx context.Context) error {
	r.record("clear_flag")
	return r.Store.ClearLogoutFlag(ctx)
}

func (r *recordingStore) PurgeSession(ctx context.Context) error {
	r.record("purge")
	if r.purgeErr != nil {
		return r.purgeErr
	}
	return r.Store.PurgeSession(ctx)
}

// recordingAPI notes when the server-side sign-out fires relative to store
// mutations.
type recordingAPI struct {
	MockIdentityAPI
	store *recordingStore
}

func (a *recordingAPI) SignOut(ctx context.Context, reason string) error {
	a.store.record("sign_out")
	return a.MockIdentityAPI.SignOut(ctx, reason)
}

func TestLogoutCriticalSectionOrdering(t *testing.T) {
	st := newRecordingStore(t)
	api := &recordingAPI{store: st}
	api.On("SignOut", mock.Anything, "user_logout").Return(nil).Once()

	verifier := &MockVerifier{}
	m := session.NewMachine(api, st, session.WithMachineVerifier(verifier))
	defer m.Close()

	require.NoError(t, m.Logout(context.Background()))

	assert.Equal(t, []string{"set_flag", "sign_out", "purge", "clear_flag"}, st.operations())
}

func TestLogoutServerFailureIsBestEffort(t *testing.T) {
	st := newRecordingStore(t)
	api := &recordingAPI{store: st}
	api.On("SignOut", mock.Anything, "user_logout").
		Return(errors.New("backend down")).Once()

	verifier := &MockVerifier{}
	m := session.NewMachine(api, st, session.WithMachineVerifier(verifier))
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, st.SaveProfile(ctx, &session.UserProfile{ID: "u-1"}))

	require.NoError(t, m.Logout(ctx))

	snap := m.Snapshot()
	assert.Equal(t, session.PhaseUnauthenticated, snap.Phase)
	assert.Equal(t, session.ReasonLoggedOut, snap.Reason)

	profile, err := st.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestLogoutFailedPurgeKeepsFlag(t *testing.T) {
	st := newRecordingStore(t)
	st.purgeErr = errors.New("disk full")

	api := &recordingAPI{store: st}
	api.On("SignOut", mock.Anything, "user_logout").Return(nil).Once()

	verifier := &MockVerifier{}
	m := session.NewMachine(api, st, session.WithMachineVerifier(verifier))
	defer m.Close()

	ctx := context.Background()
	err := m.Logout(ctx)
	require.Error(t, err)

	// The flag stays: a reload after the failed purge must still refuse to
	// resurrect the session.
	flag, ferr := st.LogoutFlag(ctx)
	require.NoError(t, ferr)
	assert.NotNil(t, flag)

	// The machine still settles in the logged-out phase.
	snap := m.Snapshot()
	assert.Equal(t, session.PhaseUnauthenticated, snap.Phase)
	assert.Equal(t, session.ReasonLoggedOut, snap.Reason)
}

func TestLogoutForRedirectLeavesFlagForHandoff(t *testing.T) {
	st := newRecordingStore(t)
	api := &recordingAPI{store: st}
	api.On("SignOut", mock.Anything, "user_logout").Return(nil).Once()

	verifier := &MockVerifier{}
	m := session.NewMachine(api, st, session.WithMachineVerifier(verifier))
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Coordinator().LogoutForRedirect(ctx))

	flag, err := st.LogoutFlag(ctx)
	require.NoError(t, err)
	require.NotNil(t, flag)

	assert.NotContains(t, st.operations(), "clear_flag")
}

func TestLogoutHandoffConsumedByNextStart(t *testing.T) {
	st := newRecordingStore(t)
	api := &recordingAPI{store: st}
	api.On("SignOut", mock.Anything, "user_logout").Return(nil).Once()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	verifier := &MockVerifier{}
	first := session.NewMachine(api, st,
		session.WithMachineVerifier(verifier),
		session.WithMachineClock(clock),
	)

	ctx := context.Background()
	require.NoError(t, st.SaveProfile(ctx, &session.UserProfile{ID: "u-1"}))
	require.NoError(t, first.Coordinator().LogoutForRedirect(ctx))
	first.Close()

	// Simulated reload: a fresh machine over the same store.
	second := session.NewMachine(&MockIdentityAPI{}, st,
		session.WithMachineVerifier(verifier),
		session.WithMachineClock(clock),
	)
	defer second.Close()

	require.NoError(t, second.Start(ctx))

	snap := second.Snapshot()
	assert.Equal(t, session.PhaseUnauthenticated, snap.Phase)
	assert.Equal(t, session.ReasonLoggedOut, snap.Reason)

	flag, err := st.LogoutFlag(ctx)
	require.NoError(t, err)
	assert.Nil(t, flag, "handoff flag is consumed exactly once")

	verifier.AssertNotCalled(t, "Verify", mock.Anything)
}

func TestLogoutWhileLogoutInProgress(t *testing.T) {
	st := newRecordingStore(t)
	api := &recordingAPI{store: st}

	started := make(chan struct{})
	release := make(chan struct{})
	api.On("SignOut", mock.Anything, "user_logout").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(nil).Once()

	verifier := &MockVerifier{}
	m := session.NewMachine(api, st, session.WithMachineVerifier(verifier))
	defer m.Close()

	done := make(chan error, 1)
	go func() {
		done <- m.Logout(context.Background())
	}()

	<-started
	assert.ErrorIs(t, m.Logout(context.Background()), session.ErrLogoutInProgress)

	close(release)
	require.NoError(t, <-done)
}

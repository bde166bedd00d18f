package session_test

import (
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserProfileCloneIsIndependent(t *testing.T) {
	original := &session.UserProfile{ID: "u-1", Email: "ada@example.com"}

	clone := original.Clone()
	require.NotNil(t, clone)
	clone.Email = "changed@example.com"

	assert.Equal(t, "ada@example.com", original.Email)
}

func TestUserProfileCloneNil(t *testing.T) {
	var profile *session.UserProfile
	assert.Nil(t, profile.Clone())
}

func TestSnapshotAuthenticated(t *testing.T) {
	snap := session.Snapshot{
		Phase: session.PhaseAuthenticated,
		User:  &session.UserProfile{ID: "u-1"},
	}
	assert.True(t, snap.Authenticated())

	snap.User = nil
	assert.False(t, snap.Authenticated())

	snap.User = &session.UserProfile{ID: "u-1"}
	snap.Phase = session.PhaseVerifying
	assert.False(t, snap.Authenticated())
}

func TestLogoutFlagFreshness(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	flag := session.NewLogoutFlag(now)

	assert.True(t, flag.FreshAt(now.Add(10*time.Second), 30*time.Second))
	assert.False(t, flag.FreshAt(now.Add(30*time.Second), 30*time.Second))
	assert.False(t, flag.FreshAt(now.Add(time.Minute), 30*time.Second))
}

func TestLogoutFlagZeroValueNeverFresh(t *testing.T) {
	var flag session.LogoutFlag
	assert.False(t, flag.FreshAt(time.Now(), time.Hour))
}

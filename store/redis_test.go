package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	session "github.com/goliatone/go-session"
	"github.com/goliatone/go-session/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*store.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st, err := store.NewRedis(client, "gs-test", 30*time.Second)
	require.NoError(t, err)
	return st, mr
}

func TestRedisProfileRoundtrip(t *testing.T) {
	st, _ := newRedisStore(t)
	ctx := context.Background()

	profile, err := st.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	saved := &session.UserProfile{ID: "u-1", Email: "ada@example.com"}
	require.NoError(t, st.SaveProfile(ctx, saved))

	got, err := st.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved, got)
}

func TestRedisPurgePreservesLogoutFlag(t *testing.T) {
	st, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveProfile(ctx, &session.UserProfile{ID: "u-1"}))
	require.NoError(t, st.SaveBearerToken(ctx, "token"))
	require.NoError(t, st.SetLogoutFlag(ctx, session.NewLogoutFlag(time.Now())))

	require.NoError(t, st.PurgeSession(ctx))

	profile, err := st.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	token, err := st.BearerToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	flag, err := st.LogoutFlag(ctx)
	require.NoError(t, err)
	assert.NotNil(t, flag)
}

func TestRedisPurgeSweepsWholeNamespace(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveProfile(ctx, &session.UserProfile{ID: "u-1"}))
	require.NoError(t, st.SetLogoutFlag(ctx, session.NewLogoutFlag(time.Now())))
	// An entry the store did not write itself must not outlive the purge.
	require.NoError(t, mr.Set("gs-test:preferences", "theme=dark"))
	require.NoError(t, mr.Set("unrelated:key", "kept"))

	require.NoError(t, st.PurgeSession(ctx))

	assert.False(t, mr.Exists("gs-test:profile"))
	assert.False(t, mr.Exists("gs-test:preferences"))
	assert.True(t, mr.Exists("gs-test:logout_flag"))
	assert.True(t, mr.Exists("unrelated:key"))
}

func TestRedisLogoutFlagExpires(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetLogoutFlag(ctx, session.NewLogoutFlag(time.Now())))

	flag, err := st.LogoutFlag(ctx)
	require.NoError(t, err)
	require.NotNil(t, flag)

	// An abandoned flag must not wedge the namespace forever.
	mr.FastForward(31 * time.Second)

	flag, err = st.LogoutFlag(ctx)
	require.NoError(t, err)
	assert.Nil(t, flag)
}

func TestRedisPing(t *testing.T) {
	st, mr := newRedisStore(t)

	_, err := st.Ping(context.Background())
	require.NoError(t, err)

	mr.Close()
	_, err = st.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrRedisUnavailable)
}

package store

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"sync"

	session "github.com/goliatone/go-session"
)

// Memory is an in-process implementation of session.Store. It is the default
// backend and the one tests use: a cookie jar plus a mutex-guarded cache.
type Memory struct {
	mu      sync.RWMutex
	jar     http.CookieJar
	profile *session.UserProfile
	bearer  string
	flag    *session.LogoutFlag
}

// NewMemory builds an empty in-memory store with a fresh cookie jar.
func NewMemory() (*Memory, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Memory{jar: jar}, nil
}

func (m *Memory) Jar() http.CookieJar {
	return m.jar
}

func (m *Memory) Profile(ctx context.Context) (*session.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile.Clone(), nil
}

func (m *Memory) SaveProfile(ctx context.Context, profile *session.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = profile.Clone()
	return nil
}

func (m *Memory) BearerToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bearer, nil
}

func (m *Memory) SaveBearerToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bearer = token
	return nil
}

func (m *Memory) LogoutFlag(ctx context.Context) (*session.LogoutFlag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.flag == nil {
		return nil, nil
	}
	flag := *m.flag
	return &flag, nil
}

func (m *Memory) SetLogoutFlag(ctx context.Context, flag session.LogoutFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flag = &flag
	return nil
}

func (m *Memory) ClearLogoutFlag(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flag = nil
	return nil
}

// PurgeSession drops the cached profile and bearer fallback. The logout flag
// survives a purge so an interrupted logout can resume after restart. The jar
// is left alone: the session cookie is HTTP-only and the server owns its
// lifecycle.
func (m *Memory) PurgeSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = nil
	m.bearer = ""
	return nil
}

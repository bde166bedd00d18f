package session

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// StateSource is the read-only surface consumed by route guards and other UI
// subscribers. They never mutate session state directly.
type StateSource interface {
	Snapshot() Snapshot
	Grace() GraceWindow
	Subscribe() (<-chan Snapshot, func())
}

// SessionMachine is the injectable service owning all session transitions.
type SessionMachine interface {
	StateSource
	Start(ctx context.Context) error
	Login(ctx context.Context, identifier, credential string) error
	Verify(ctx context.Context) (Snapshot, error)
	Logout(ctx context.Context) error
	Close()
}

// Verifier performs the single source-of-truth check against the identity
// backend, applying its retry policy internally. Implementations must never
// surface transient failures mid-loop; only the final outcome is returned.
type Verifier interface {
	Verify(ctx context.Context) (Outcome, error)
}

// IdentityAPI is the small HTTP contract the identity backend exposes. It is
// an external collaborator, not part of the core.
type IdentityAPI interface {
	SignIn(ctx context.Context, payload SignInPayload) (*SignInResult, error)
	SignUp(ctx context.Context, payload SignUpPayload) (*SignUpResult, error)
	Me(ctx context.Context) (*UserProfile, error)
	SignOut(ctx context.Context, reason string) error
}

// Store straddles the two persistence locations the client is forced to use:
// the HTTP-only cookie jar (opaque, carries the real session) and the
// client-visible fallback cache (last-known profile + bearer token), plus the
// durable logout flag. Only the Machine and the Coordinator may write it.
type Store interface {
	Jar() http.CookieJar

	Profile(ctx context.Context) (*UserProfile, error)
	SaveProfile(ctx context.Context, profile *UserProfile) error

	BearerToken(ctx context.Context) (string, error)
	SaveBearerToken(ctx context.Context, token string) error

	LogoutFlag(ctx context.Context) (*LogoutFlag, error)
	SetLogoutFlag(ctx context.Context, flag LogoutFlag) error
	ClearLogoutFlag(ctx context.Context) error

	// PurgeSession wipes every namespaced entry that could reconstruct a
	// session: profile, bearer fallback, and any user-keyed feature caches.
	// It must not touch the logout flag.
	PurgeSession(ctx context.Context) error
}

// Config holds session options.
type Config interface {
	GetGraceDuration() time.Duration
	GetRetryPolicy() RetryPolicy
	GetLogoutFlagTTL() time.Duration
	GetLoginRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

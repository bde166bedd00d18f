package session

import "time"

// DefaultLogoutFlagTTL bounds how long a persisted logout flag stays
// meaningful. A crash mid-logout must not lock the user out of the next
// session forever; flags older than this are treated as abandoned.
const DefaultLogoutFlagTTL = 30 * time.Second

// SimpleConfig implements Config with plain fields. Zero values fall back to
// documented defaults.
type SimpleConfig struct {
	GraceDuration        time.Duration `json:"grace_duration"`
	Retry                RetryPolicy   `json:"retry"`
	LogoutFlagTTL        time.Duration `json:"logout_flag_ttl"`
	LoginRoute           string        `json:"login_route"`
	RejectedRouteKey     string        `json:"rejected_route_key"`
	RejectedRouteDefault string        `json:"rejected_route_default"`
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetGraceDuration() time.Duration {
	if c.GraceDuration <= 0 {
		return DefaultGraceDuration
	}
	return c.GraceDuration
}

func (c SimpleConfig) GetRetryPolicy() RetryPolicy {
	if c.Retry.MaxAttempts <= 0 {
		return DefaultRetryPolicy()
	}
	return c.Retry.normalize()
}

func (c SimpleConfig) GetLogoutFlagTTL() time.Duration {
	if c.LogoutFlagTTL <= 0 {
		return DefaultLogoutFlagTTL
	}
	return c.LogoutFlagTTL
}

func (c SimpleConfig) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

func (c SimpleConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c SimpleConfig) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}

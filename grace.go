package session

import "time"

// DefaultGraceDuration is the window during which an unauthenticated snapshot
// must not trigger a redirect after a successful login/verify. It absorbs the
// latency between "cookie set by server" and "cookie visible to the next
// request".
//
// Trade-off: shorter grace redirects faster when a login genuinely failed but
// risks bouncing a legitimately-authenticated user on slow networks; longer
// grace keeps slow connections loading. The source implementations ranged
// 1.5s-8s; 4s sits in the middle.
const DefaultGraceDuration = 4 * time.Second

// GracePolicy arms grace windows. A zero Duration falls back to the default.
type GracePolicy struct {
	Duration time.Duration
}

func (p GracePolicy) duration() time.Duration {
	if p.Duration <= 0 {
		return DefaultGraceDuration
	}
	return p.Duration
}

// Arm opens a fresh window at now.
func (p GracePolicy) Arm(now time.Time) GraceWindow {
	return GraceWindow{ArmedAt: now, Duration: p.duration()}
}

// GraceWindow is a single timestamped window. There is exactly one instance,
// owned by the machine; it is re-armed only by explicit login/verify success.
type GraceWindow struct {
	ArmedAt  time.Time
	Duration time.Duration
}

// ActiveAt reports whether the window still masks redirects. The Duration is
// a hard ceiling: once it elapses the guard must redirect rather than loop in
// loading forever.
func (w GraceWindow) ActiveAt(now time.Time) bool {
	if w.ArmedAt.IsZero() || w.Duration <= 0 {
		return false
	}
	return now.Sub(w.ArmedAt) < w.Duration
}

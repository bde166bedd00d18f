// Package session implements the client-side session authentication and
// consistency state machine for cookie-authenticated web products.
//
// Session lifecycle:
//   - A Machine owns the authoritative in-memory session state (uninitialized,
//     verifying, authenticated, unauthenticated, logging-out) and is the only
//     component allowed to mutate the Store's cache entries. Every transition
//     is published to subscribers and revalidated against an epoch counter so
//     late-arriving verification results never resurrect a dead session.
//   - Verification runs against the identity backend with a bounded
//     RetryPolicy: definitive rejections (401/403) short-circuit, transient
//     failures back off exponentially until the policy exhausts.
//   - Logout is a critical section coordinated by Coordinator: it pre-empts any
//     in-flight verification, persists a restart-surviving logout flag, fires a
//     best-effort server-side invalidation, and purges every cache entry that
//     could reconstruct the session before releasing the flag.
//
// Route guarding:
//   - Evaluate is a pure function of (Snapshot, GraceWindow, Route) that yields
//     render, loading, or redirect. The grace window absorbs the latency
//     between "cookie set by server" and "cookie visible to the next request"
//     so a legitimately just-logged-in user is never bounced to the login page.
//     RouteGuard adapts the same decision into go-router middleware.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Machine and the
//     Coordinator to describe login, verification, and logout events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or queue
//     without blocking the session flow.
package session

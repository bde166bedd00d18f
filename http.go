package session

import (
	"net/http"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard is the presentation-layer consumer of the machine's state: for
// every request it renders protected content, shows a loading placeholder, or
// redirects to login. It never mutates session state.
type RouteGuard struct {
	source StateSource
	cfg    Config
	public map[string]struct{}
	now    func() time.Time

	Debug  bool
	Logger Logger

	// LoadingHandler renders the non-blocking placeholder shown while the
	// machine is verifying or inside the grace window.
	LoadingHandler func(c router.Context, snap Snapshot) error
	// RedirectHandler issues the login redirect once no grace applies.
	RedirectHandler func(c router.Context, target string) error
}

// GuardOption customizes RouteGuard construction.
type GuardOption func(*RouteGuard)

// WithGuardClock injects a custom clock (useful for tests).
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *RouteGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithGuardLogger overrides the logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

// WithPublicRoutes adds paths that always render regardless of state.
func WithPublicRoutes(paths ...string) GuardOption {
	return func(g *RouteGuard) {
		for _, p := range paths {
			g.public[p] = struct{}{}
		}
	}
}

// NewRouteGuard builds a guard over the given state source. Login, signup,
// and logout routes are public by default.
func NewRouteGuard(source StateSource, cfg Config, opts ...GuardOption) *RouteGuard {
	if cfg == nil {
		cfg = SimpleConfig{}
	}

	g := &RouteGuard{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		Logger: defLogger{},
		public: map[string]struct{}{
			cfg.GetLoginRoute(): {},
			"/signup":           {},
			"/logout":           {},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.LoadingHandler == nil {
		g.LoadingHandler = g.defaultLoadingHandler
	}
	if g.RedirectHandler == nil {
		g.RedirectHandler = g.defaultRedirectHandler
	}

	return g
}

// Evaluate resolves the decision for a single path using current state.
func (g *RouteGuard) Evaluate(path string) Decision {
	route := Route{Path: path, Public: g.isPublic(path)}
	return Evaluate(g.source.Snapshot(), g.source.Grace(), route, g.cfg.GetLoginRoute(), g.now())
}

// Middleware adapts the guard decision into go-router middleware.
func (g *RouteGuard) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			decision := g.Evaluate(c.Path())

			if g.Debug {
				g.Logger.Debug("guard decision %s", print.MaybePrettyJSON(decision))
			}

			switch decision.Action {
			case ActionRender:
				return hf(c)
			case ActionLoading:
				return g.LoadingHandler(c, g.source.Snapshot())
			case ActionRedirect:
				g.SetRedirect(c)
				return g.RedirectHandler(c, decision.Target)
			default:
				return hf(c)
			}
		}
	}
}

// SetRedirect remembers the rejected route so a successful login can bounce
// the user back where they were headed.
func (g *RouteGuard) SetRedirect(c router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("setting redirect cookie %s: %s", rejectedRoute, c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Expires:  g.now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect returns the remembered rejected route, or def when none is set,
// clearing the cookie either way.
func (g *RouteGuard) GetRedirect(c router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(c, rejectedRoute)
	return r
}

func (g *RouteGuard) isPublic(path string) bool {
	_, ok := g.public[path]
	return ok
}

func (g *RouteGuard) defaultLoadingHandler(c router.Context, snap Snapshot) error {
	return c.Status(http.StatusOK).Render("loading", router.ViewContext{
		"phase":   string(snap.Phase),
		"attempt": snap.Attempt,
	})
}

func (g *RouteGuard) defaultRedirectHandler(c router.Context, target string) error {
	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(target, statusCode)
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  g.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

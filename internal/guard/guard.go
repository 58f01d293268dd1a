// Package guard gates protected views on the resolution of the current-user
// query. Navigation is a reaction to a declared state transition, so the
// whole machine runs without a router.
package guard

import (
	"log/slog"
	"sync"

	"github.com/FACorreiaa/citizen-portal/internal/querycache"
)

// DefaultLoginPath is where failed resolutions are sent.
const DefaultLoginPath = "/login"

// State of the guard within one navigation.
type State int

const (
	StatePending State = iota
	StateResolvedOK
	StateResolvedError
)

func (s State) String() string {
	switch s {
	case StateResolvedOK:
		return "resolved-ok"
	case StateResolvedError:
		return "resolved-error"
	default:
		return "pending"
	}
}

// Decision tells the view what to do.
type Decision int

const (
	DecisionLoading Decision = iota
	DecisionRender
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionRender:
		return "render"
	case DecisionRedirect:
		return "redirect"
	default:
		return "loading"
	}
}

// Resolution is the observed state of the current-user query.
type Resolution int

const (
	ResolutionPending Resolution = iota
	ResolutionOK
	ResolutionError
)

// ResolutionOf maps a cache snapshot to a Resolution. A stale value that is
// being revalidated still counts as resolved.
func ResolutionOf(s querycache.Snapshot) Resolution {
	switch {
	case s.Status == querycache.StatusError, s.Err != nil && !s.HasValue:
		return ResolutionError
	case s.Status == querycache.StatusSuccess && s.HasValue:
		return ResolutionOK
	default:
		return ResolutionPending
	}
}

// NavigateOptions modify a navigation.
type NavigateOptions struct {
	// Replace swaps the current history entry instead of pushing, so that
	// back-navigation skips the guarded page.
	Replace bool
}

// Navigator performs navigations.
type Navigator interface {
	Navigate(to string, opts NavigateOptions)
}

// Guard is the pending -> resolved-ok / resolved-error machine for one
// protected view.
type Guard struct {
	mu         sync.Mutex
	state      State
	redirected bool

	nav       Navigator
	loginPath string
	logger    *slog.Logger
}

// New creates a guard in the pending state.
func New(nav Navigator, loginPath string, logger *slog.Logger) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		nav:       nav,
		loginPath: loginPath,
		logger:    logger.With(slog.String("component", "guard")),
	}
}

// Begin starts a new navigation to the protected view.
func (g *Guard) Begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StatePending
	g.redirected = false
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resolve feeds the latest resolution into the machine and returns what to
// render. Entering resolved-error redirects to the login path exactly once;
// the error state is kept until the next Begin. A pending resolution after
// resolved-ok keeps rendering.
func (g *Guard) Resolve(r Resolution) Decision {
	g.mu.Lock()
	var redirect bool
	var d Decision
	switch {
	case g.state == StateResolvedError:
		d = DecisionRedirect
	case r == ResolutionError:
		g.logger.Info("guard transition", slog.String("from", g.state.String()), slog.String("to", StateResolvedError.String()))
		g.state = StateResolvedError
		redirect = !g.redirected
		g.redirected = true
		d = DecisionRedirect
	case r == ResolutionOK:
		if g.state != StateResolvedOK {
			g.logger.Debug("guard transition", slog.String("from", g.state.String()), slog.String("to", StateResolvedOK.String()))
		}
		g.state = StateResolvedOK
		d = DecisionRender
	case g.state == StateResolvedOK:
		d = DecisionRender
	default:
		d = DecisionLoading
	}
	g.mu.Unlock()

	if redirect && g.nav != nil {
		g.nav.Navigate(g.loginPath, NavigateOptions{Replace: true})
	}
	return d
}

// Watch follows the events of key in c until the returned func is called, so
// that a session expiring mid-visit re-triggers the redirect.
func (g *Guard) Watch(c *querycache.Cache, key querycache.Key) func() {
	return c.Subscribe(key, func(ev querycache.Event) {
		if !ev.Key.Equal(key) {
			return
		}
		switch ev.Type {
		case querycache.EventFailed:
			g.Resolve(ResolutionError)
		case querycache.EventResolved, querycache.EventUpdated:
			g.Resolve(ResolutionOK)
		}
	})
}

// LoginPath returns the redirect target.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

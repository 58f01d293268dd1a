package appMiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// DefaultGuardWait is how long a guarded request waits for the session
// check before answering with the loading placeholder.
const DefaultGuardWait = 2 * time.Second

// SessionChecker runs the current-user query.
type SessionChecker interface {
	CurrentUser(ctx context.Context) querycache.Result[types.User]
}

// GuardConfig wires the route guard middleware.
type GuardConfig struct {
	Guard   *guard.Guard
	Session SessionChecker
	History *guard.History
	Wait    time.Duration
	Logger  *slog.Logger
}

// Guard protects a route with the route guard: the current-user query is
// started on every visit, a pending check answers 202 with a loading body
// and a failed check redirects to the login screen without rendering.
//
// cfg.Guard models the one navigation of a single-session shell. Every
// guarded request calls Begin on it, so overlapping requests share and
// reset the same state; the last one to resolve decides what it holds.
func Guard(cfg GuardConfig) func(next http.Handler) http.Handler {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultGuardWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := cfg.Logger.With(slog.String("middleware", "Guard"), slog.String("path", r.URL.Path))

			cfg.Guard.Begin()
			if cfg.History != nil {
				cfg.History.Navigate(r.URL.Path, guard.NavigateOptions{})
			}

			waitCtx, cancel := context.WithTimeout(ctx, cfg.Wait)
			res := cfg.Session.CurrentUser(waitCtx)
			cancel()

			decision := cfg.Guard.Resolve(resolutionOf(res))
			metrics.GuardDecisions.WithLabelValues(decision.String()).Inc()

			switch decision {
			case guard.DecisionLoading:
				l.DebugContext(ctx, "Session check still pending")
				api.WriteJSONResponse(w, r, http.StatusAccepted, api.LoadingResponse{Loading: true, Message: "Loading..."})
			case guard.DecisionRedirect:
				l.InfoContext(ctx, "Redirecting to login", slog.String("request_id", middleware.GetReqID(ctx)))
				http.Redirect(w, r, cfg.Guard.LoginPath(), http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// resolutionOf treats running out of wait time as still pending rather than
// as a failed check.
func resolutionOf(res querycache.Result[types.User]) guard.Resolution {
	waiting := errors.Is(res.Err, context.DeadlineExceeded) || errors.Is(res.Err, context.Canceled)
	switch {
	case res.HasData && res.Status == querycache.StatusSuccess:
		return guard.ResolutionOK
	case res.Status == querycache.StatusError:
		return guard.ResolutionError
	case res.Err != nil && !waiting:
		return guard.ResolutionError
	default:
		return guard.ResolutionPending
	}
}

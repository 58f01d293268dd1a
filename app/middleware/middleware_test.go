package appMiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

type sessionFunc func(ctx context.Context) querycache.Result[types.User]

func (f sessionFunc) CurrentUser(ctx context.Context) querycache.Result[types.User] { return f(ctx) }

func okSession() sessionFunc {
	return func(context.Context) querycache.Result[types.User] {
		return querycache.Result[types.User]{Status: querycache.StatusSuccess, HasData: true, Data: types.User{ID: "me"}}
	}
}

func failedSession() sessionFunc {
	return func(context.Context) querycache.Result[types.User] {
		return querycache.Result[types.User]{Status: querycache.StatusError, Err: &types.APIError{StatusCode: http.StatusUnauthorized}}
	}
}

func slowSession() sessionFunc {
	return func(ctx context.Context) querycache.Result[types.User] {
		<-ctx.Done()
		return querycache.Result[types.User]{Status: querycache.StatusPending, IsLoading: true, Err: ctx.Err()}
	}
}

var rendered = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("protected"))
})

func guarded(s SessionChecker) (http.Handler, *guard.Guard, *guard.History) {
	history := guard.NewHistory("/")
	g := guard.New(history, api.LoginPath, nil)
	h := Guard(GuardConfig{Guard: g, Session: s, History: history, Wait: 20 * time.Millisecond})(rendered)
	return h, g, history
}

func TestGuard(t *testing.T) {
	t.Run("RendersWhenResolved", func(t *testing.T) {
		h, g, history := guarded(okSession())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "protected", w.Body.String())
		assert.Equal(t, guard.StateResolvedOK, g.State())
		assert.Equal(t, "/profile", history.Location())
	})

	t.Run("RedirectsWithoutRendering", func(t *testing.T) {
		h, g, history := guarded(failedSession())
		for range 2 {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, api.LoginPath, w.Header().Get("Location"))
			assert.NotContains(t, w.Body.String(), "protected")
		}
		assert.Equal(t, guard.StateResolvedError, g.State())
		assert.Equal(t, api.LoginPath, history.Location())
		assert.NotContains(t, history.Entries(), "/profile")
	})

	t.Run("PendingShowsLoading", func(t *testing.T) {
		h, g, _ := guarded(slowSession())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))

		require.Equal(t, http.StatusAccepted, w.Code)
		var body api.LoadingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Loading)
		assert.Equal(t, guard.StatePending, g.State())
	})

	t.Run("EveryVisitRestartsTheSharedGuard", func(t *testing.T) {
		history := guard.NewHistory("/")
		g := guard.New(history, api.LoginPath, nil)
		rejected := Guard(GuardConfig{Guard: g, Session: failedSession(), History: history, Wait: 20 * time.Millisecond})(rendered)
		accepted := Guard(GuardConfig{Guard: g, Session: okSession(), History: history, Wait: 20 * time.Millisecond})(rendered)

		w := httptest.NewRecorder()
		rejected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, guard.StateResolvedError, g.State())

		w = httptest.NewRecorder()
		accepted.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, guard.StateResolvedOK, g.State())
	})
}

func TestRequireConfirmation(t *testing.T) {
	var calls int
	h := RequireConfirmation("delete this user")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("Unconfirmed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))

		assert.Equal(t, http.StatusPreconditionRequired, w.Code)
		var body api.ConfirmationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.ConfirmationRequired)
		assert.Equal(t, types.ErrConfirmationRequired.Error(), body.Error)
		assert.Equal(t, "delete this user", body.Action)
		assert.Zero(t, calls)
	})

	t.Run("Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/users/u1", nil)
		req.Header.Set(ConfirmHeader, "true")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("QueryParam", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/u1?confirm=1", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("FalseIsNotConfirmation", func(t *testing.T) {
		before := calls
		req := httptest.NewRequest(http.MethodDelete, "/users/u1", nil)
		req.Header.Set(ConfirmHeader, "false")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusPreconditionRequired, w.Code)
		assert.Equal(t, before, calls)
	})
}

// Package session projects query cache results into the client store and
// reacts to authorization failures. It is the only writer of the store.
package session

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// Epoch identifies one session context. Work started in an older epoch must
// not write into a newer one.
type Epoch = uuid.UUID

// Hooks is the glue between the query cache, the client store and
// navigation.
type Hooks struct {
	cache  *querycache.Cache
	store  *store.Store
	nav    guard.Navigator
	logger *slog.Logger

	listing *querycache.Observer[types.UsersPage]

	mu          sync.Mutex
	epoch       Epoch
	unsubscribe []func()
}

// New wires the hooks to the cache. Call Close to detach them.
func New(cache *querycache.Cache, st *store.Store, nav guard.Navigator, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hooks{
		cache:  cache,
		store:  st,
		nav:    nav,
		logger: logger.With(slog.String("component", "session")),
		listing: querycache.NewObserver(cache, querycache.TypedOptions[types.UsersPage]{
			Retry: querycache.NoRetry(),
		}),
		epoch: uuid.New(),
	}
	h.unsubscribe = []func(){
		cache.Subscribe(CurrentUserKey, h.onCurrentUser),
		cache.Subscribe(UserPattern, h.onUser),
		cache.Subscribe(UsersPattern, h.onUsers),
		cache.Subscribe(nil, h.onAnyFailure),
	}
	return h
}

// Close detaches the hooks from the cache.
func (h *Hooks) Close() {
	h.mu.Lock()
	subs := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()
	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

// Epoch returns the current session epoch.
func (h *Hooks) Epoch() Epoch {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.epoch
}

// Listing is the slot of the users listing screen.
func (h *Hooks) Listing() *querycache.Observer[types.UsersPage] {
	return h.listing
}

func (h *Hooks) current(epoch Epoch) bool {
	if epoch == h.Epoch() {
		return true
	}
	h.logger.Debug("dropping work from a previous session", slog.String("epoch", epoch.String()))
	return false
}

func (h *Hooks) onCurrentUser(ev querycache.Event) {
	if !ev.HasValue() || !ev.Key.Equal(CurrentUserKey) {
		return
	}
	u, ok := ev.Value.(types.User)
	if !ok {
		return
	}
	h.store.Dispatch(store.SetCurrentUser{User: u})
	h.store.Dispatch(store.SetAuthenticated{Value: true})
}

func (h *Hooks) onUser(ev querycache.Event) {
	if !ev.HasValue() || len(ev.Key) != 2 {
		return
	}
	if u, ok := ev.Value.(types.User); ok {
		h.store.Dispatch(store.UpsertUser{Patch: types.PatchFromUser(u)})
	}
}

func (h *Hooks) onUsers(ev querycache.Event) {
	if !ev.HasValue() || !h.listing.IsCurrent(ev.Key) {
		return
	}
	if page, ok := ev.Value.(types.UsersPage); ok {
		h.store.Dispatch(store.SetUsersList{Users: page.Users})
	}
}

func (h *Hooks) onAnyFailure(ev querycache.Event) {
	if ev.Type != querycache.EventFailed || !api.IsAuthError(ev.Err) {
		return
	}
	h.logger.Info("unauthenticated response, clearing session", slog.String("key", ev.Key.String()))
	h.ClearSession("unauthenticated")
}

// ListingShown mirrors a listing page served from cache into the store.
// Pages that are not the slot's current key are ignored.
func (h *Hooks) ListingShown(key querycache.Key, page types.UsersPage) {
	if !h.listing.IsCurrent(key) {
		return
	}
	h.store.Dispatch(store.SetUsersList{Users: page.Users})
}

// LoggedIn starts a new authenticated session. Everything cached for the
// previous session is dropped so the new one only sees what the server
// returns to it.
func (h *Hooks) LoggedIn() {
	h.reset()
	h.store.Dispatch(store.SetAuthenticated{Value: true})
}

// LoggedOut ends the session.
func (h *Hooks) LoggedOut() {
	h.ClearSession("logout")
}

// MutationFailed applies the global reaction to a failed mutation: an
// authorization failure ends the session. Anything else is left to the
// caller to display.
func (h *Hooks) MutationFailed(epoch Epoch, err error) {
	if !api.IsAuthError(err) || !h.current(epoch) {
		return
	}
	h.ClearSession("unauthenticated")
}

// ClearSession forgets everything the client believes about the session and
// navigates to the login screen. Work from before the call is discarded
// because the cache entries it would resolve into are gone and the epoch
// has moved on.
func (h *Hooks) ClearSession(reason string) {
	h.reset()
	h.store.Dispatch(store.Logout{})
	if h.nav != nil {
		h.nav.Navigate(api.LoginPath, guard.NavigateOptions{Replace: true})
	}
	metrics.SessionClears.WithLabelValues(reason).Inc()
}

// reset moves to a new epoch and forgets every user-scoped value.
func (h *Hooks) reset() {
	h.mu.Lock()
	h.epoch = uuid.New()
	h.mu.Unlock()

	h.listing.Reset()
	h.cache.Clear()
	h.store.Dispatch(store.ClearCurrentUser{})
	h.store.Dispatch(store.ClearUsers{})
}

// UserChanged propagates a successful mutation of one user to every cache
// entry that embeds it. The session's own record is also invalidated so its
// next read comes from the server.
func (h *Hooks) UserChanged(epoch Epoch, patch types.UserPatch) {
	if patch.ID == "" || !h.current(epoch) {
		return
	}

	querycache.SetQueriesData(h.cache, UsersPattern, func(_ querycache.Key, page types.UsersPage) (types.UsersPage, bool) {
		i := slices.IndexFunc(page.Users, func(u types.User) bool { return u.ID == patch.ID })
		if i < 0 {
			return page, false
		}
		page.Users = slices.Clone(page.Users)
		page.Users[i] = page.Users[i].Apply(patch)
		return page, true
	})
	querycache.SetQueryData(h.cache, UserKey(patch.ID), func(old types.User, ok bool) (types.User, bool) {
		if !ok {
			return old, false
		}
		return old.Apply(patch), true
	})

	if me, ok := h.store.CurrentUser(); ok && me.ID == patch.ID {
		querycache.SetQueryData(h.cache, CurrentUserKey, func(old types.User, ok bool) (types.User, bool) {
			if !ok {
				return old, false
			}
			return old.Apply(patch), true
		})
		h.store.Dispatch(store.UpdateCurrentUser{Patch: patch})
		h.cache.Invalidate(CurrentUserKey)
	}
}

// UserCreated makes every listing refetch.
func (h *Hooks) UserCreated(epoch Epoch) {
	if !h.current(epoch) {
		return
	}
	h.cache.Invalidate(UsersPattern)
}

// UserDeleted drops a deleted user from every listing page and the by-id
// entry. Listings are also invalidated because paging shifts on the server.
func (h *Hooks) UserDeleted(epoch Epoch, id string) {
	if id == "" || !h.current(epoch) {
		return
	}

	querycache.SetQueriesData(h.cache, UsersPattern, func(_ querycache.Key, page types.UsersPage) (types.UsersPage, bool) {
		if !slices.ContainsFunc(page.Users, func(u types.User) bool { return u.ID == id }) {
			return page, false
		}
		page.Users = slices.DeleteFunc(slices.Clone(page.Users), func(u types.User) bool { return u.ID == id })
		if page.Pagination.Total > 0 {
			page.Pagination.Total--
		}
		return page, true
	})
	h.cache.Invalidate(UsersPattern)
	h.cache.Remove(UserKey(id))
	h.store.Dispatch(store.RemoveUser{ID: id})

	if me, ok := h.store.CurrentUser(); ok && me.ID == id {
		h.cache.Invalidate(CurrentUserKey)
	}
}

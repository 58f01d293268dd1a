package store

import (
	"log/slog"
	"sync"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// Store holds the client state for the lifetime of a session. State changes
// only through Dispatch.
type Store struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
	logger *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		subs:   make(map[int]func(State)),
		logger: logger.With(slog.String("component", "store")),
	}
}

// Dispatch reduces a into the state and notifies subscribers with the result.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("dispatch", slog.String("action", Name(a)))
	for _, fn := range subs {
		fn(next)
	}
	return next
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe calls fn after every dispatch until the returned func is called.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// IsAuthenticated is the client's advisory session flag.
func (s *Store) IsAuthenticated() bool {
	return s.State().Auth.IsAuthenticated
}

// CurrentUser returns a copy of the current-user snapshot.
func (s *Store) CurrentUser() (types.User, bool) {
	st := s.State()
	if st.User.Current == nil {
		return types.User{}, false
	}
	return *st.User.Current, true
}

// UserByID returns a known user.
func (s *Store) UserByID(id string) (types.User, bool) {
	u, ok := s.State().Users.ByID[id]
	return u, ok
}

// Users returns the known users in listing order.
func (s *Store) Users() []types.User {
	st := s.State()
	out := make([]types.User, 0, len(st.Users.Order))
	for _, id := range st.Users.Order {
		out = append(out, st.Users.ByID[id])
	}
	return out
}

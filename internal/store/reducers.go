package store

import (
	"slices"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// AuthState is the auth slice.
type AuthState struct {
	IsAuthenticated bool
}

// UserState is the current-user slice.
type UserState struct {
	Current *types.User
}

// UsersState is the known-users slice, keyed by id and kept in the order the
// last listing returned.
type UsersState struct {
	ByID  map[string]types.User
	Order []string
}

// State is the whole client store. Values are never mutated in place; every
// reducer returns fresh slices and maps for what it changes.
type State struct {
	Auth  AuthState
	User  UserState
	Users UsersState
}

// Reduce applies a to s and returns the next state.
func Reduce(s State, a Action) State {
	s.Auth = reduceAuth(s.Auth, a)
	s.User = reduceUser(s.User, a)
	s.Users = reduceUsers(s.Users, a)
	return s
}

func reduceAuth(s AuthState, a Action) AuthState {
	switch a := a.(type) {
	case SetAuthenticated:
		s.IsAuthenticated = a.Value
	case Logout:
		s.IsAuthenticated = false
	}
	return s
}

func reduceUser(s UserState, a Action) UserState {
	switch a := a.(type) {
	case SetCurrentUser:
		u := a.User
		s.Current = &u
	case UpdateCurrentUser:
		if s.Current == nil {
			return s
		}
		u := s.Current.Apply(a.Patch)
		s.Current = &u
	case ClearCurrentUser:
		s.Current = nil
	}
	return s
}

func reduceUsers(s UsersState, a Action) UsersState {
	switch a := a.(type) {
	case SetUsersList:
		next := UsersState{
			ByID:  make(map[string]types.User, len(a.Users)),
			Order: make([]string, 0, len(a.Users)),
		}
		for _, u := range a.Users {
			if _, dup := next.ByID[u.ID]; !dup {
				next.Order = append(next.Order, u.ID)
			}
			next.ByID[u.ID] = u
		}
		return next
	case UpsertUser:
		if a.Patch.ID == "" {
			return s
		}
		byID := make(map[string]types.User, len(s.ByID)+1)
		for id, u := range s.ByID {
			byID[id] = u
		}
		existing, ok := s.ByID[a.Patch.ID]
		byID[a.Patch.ID] = existing.Apply(a.Patch)
		order := s.Order
		if !ok {
			order = append(slices.Clone(s.Order), a.Patch.ID)
		}
		return UsersState{ByID: byID, Order: order}
	case RemoveUser:
		if _, ok := s.ByID[a.ID]; !ok {
			return s
		}
		byID := make(map[string]types.User, len(s.ByID))
		for id, u := range s.ByID {
			if id != a.ID {
				byID[id] = u
			}
		}
		order := slices.DeleteFunc(slices.Clone(s.Order), func(id string) bool { return id == a.ID })
		return UsersState{ByID: byID, Order: order}
	case ClearUsers:
		return UsersState{}
	}
	return s
}

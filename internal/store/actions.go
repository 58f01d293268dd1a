package store

import "github.com/FACorreiaa/citizen-portal/internal/types"

// Action is a named state change. Only the types in this file implement it.
type Action interface {
	actionName() string
}

// SetAuthenticated records the client's belief about the session.
type SetAuthenticated struct{ Value bool }

// Logout clears the authenticated flag.
type Logout struct{}

// SetCurrentUser replaces the current-user snapshot.
type SetCurrentUser struct{ User types.User }

// UpdateCurrentUser shallow-merges Patch into the current user. It is a no-op
// when no current user is set.
type UpdateCurrentUser struct{ Patch types.UserPatch }

// ClearCurrentUser drops the current-user snapshot.
type ClearCurrentUser struct{}

// SetUsersList replaces the known users with Users, in order.
type SetUsersList struct{ Users []types.User }

// UpsertUser inserts Patch as a new user or merges it into the known one with
// the same ID.
type UpsertUser struct{ Patch types.UserPatch }

// RemoveUser forgets the user with ID.
type RemoveUser struct{ ID string }

// ClearUsers forgets every known user.
type ClearUsers struct{}

func (SetAuthenticated) actionName() string  { return "auth/setAuthenticated" }
func (Logout) actionName() string            { return "auth/logout" }
func (SetCurrentUser) actionName() string    { return "user/setCurrentUser" }
func (UpdateCurrentUser) actionName() string { return "user/updateCurrentUser" }
func (ClearCurrentUser) actionName() string  { return "user/clearCurrentUser" }
func (SetUsersList) actionName() string      { return "users/setUsersList" }
func (UpsertUser) actionName() string        { return "users/upsertUser" }
func (RemoveUser) actionName() string        { return "users/removeUser" }
func (ClearUsers) actionName() string        { return "users/clearUsers" }

// Name returns the action's log name.
func Name(a Action) string {
	return a.actionName()
}

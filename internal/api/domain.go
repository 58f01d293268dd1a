package api

import (
	"time"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// ErrorBody is the shell's error response.
type ErrorBody struct {
	Success     bool               `json:"success"`
	Error       string             `json:"error"`
	Kind        types.ErrorKind    `json:"kind,omitempty"`
	Fields      []types.FieldError `json:"fields,omitempty"`
	Dismissible bool               `json:"dismissible,omitempty"`
	RequestID   string             `json:"request_id,omitempty"`
}

// Response is the shell's success response.
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// LoadingResponse is served while a guarded screen waits for the session.
type LoadingResponse struct {
	Loading bool   `json:"loading"`
	Message string `json:"message"`
}

// ConfirmationResponse asks the caller to repeat a destructive request with
// explicit confirmation.
type ConfirmationResponse struct {
	Error                string `json:"error"`
	ConfirmationRequired bool   `json:"confirmationRequired"`
	Action               string `json:"action"`
	Message              string `json:"message"`
}

// SessionView is what GET /session shows of the client state.
type SessionView struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	CurrentUser     *types.User `json:"currentUser,omitempty"`
	KnownUsers      int         `json:"knownUsers"`
	Location        string      `json:"location"`
	Epoch           string      `json:"epoch"`
	TokenExpiresAt  *time.Time  `json:"tokenExpiresAt,omitempty"`
}

// UsersView is the listing screen.
type UsersView struct {
	Users             []types.User        `json:"users"`
	Pagination        types.Pagination    `json:"pagination"`
	Query             map[string][]string `json:"query"`
	RoleFilterOptions []string            `json:"roleFilterOptions,omitempty"`
	IsFetching        bool                `json:"isFetching"`
}

// UserView is a single-user screen. Stale is set when the data came from
// the client store and is being revalidated.
type UserView struct {
	User  types.User `json:"user"`
	Stale bool       `json:"stale"`
}

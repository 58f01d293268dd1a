package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNoCurrentUser        = errors.New("no current user")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// FieldError is one entry of the backend's field-level error list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Fields[0].Message)
	}
	return fmt.Sprintf("api: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api: request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a client-side validation failure. It never reaches the network.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ErrorKind is the closed set of error categories consumers branch on.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindPermission ErrorKind = "permission"
	KindNotFound   ErrorKind = "not_found"
	KindServer     ErrorKind = "server"
	KindNetwork    ErrorKind = "network"
)

// Classified is the display-ready form of an error.
type Classified struct {
	Kind       ErrorKind    `json:"kind"`
	Message    string       `json:"message"`
	StatusCode int          `json:"statusCode,omitempty"`
	Fields     []FieldError `json:"fields,omitempty"`
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    types.ErrorKind
		message string
	}{
		{"client validation", &types.ValidationError{Fields: []types.FieldError{{Field: "email", Message: "Invalid email address"}}}, types.KindValidation, "Invalid email address"},
		{"field errors win", &types.APIError{StatusCode: 400, Message: "Validation failed", Fields: []types.FieldError{{Field: "username", Message: "Username taken"}}}, types.KindValidation, "Username taken"},
		{"envelope message", &types.APIError{StatusCode: 401, Message: "Session expired"}, types.KindAuth, "Session expired"},
		{"401 fallback", &types.APIError{StatusCode: 401}, types.KindAuth, MsgUnauthorized},
		{"403 fallback", &types.APIError{StatusCode: 403}, types.KindPermission, MsgForbidden},
		{"400 fallback", &types.APIError{StatusCode: 400}, types.KindValidation, MsgBadRequest},
		{"404", &types.APIError{StatusCode: 404}, types.KindNotFound, MsgNotFound},
		{"500 fallback", &types.APIError{StatusCode: 500}, types.KindServer, MsgServer},
		{"502 fallback", &types.APIError{StatusCode: 502}, types.KindServer, MsgUnexpected},
		{"network", &types.NetworkError{Method: "GET", Path: "/users", Err: errors.New("refused")}, types.KindNetwork, MsgNetwork},
		{"deadline", context.DeadlineExceeded, types.KindNetwork, MsgNetwork},
		{"wrapped", fmt.Errorf("user service: %w", &types.APIError{StatusCode: 403}), types.KindPermission, MsgForbidden},
		{"not found sentinel", types.ErrNotFound, types.KindNotFound, MsgNotFound},
		{"unknown", errors.New("weird"), types.KindServer, MsgUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyError(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.message, c.Message)
		})
	}

	assert.Equal(t, types.Classified{}, ClassifyError(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&types.NetworkError{Err: errors.New("reset")}))
	assert.True(t, IsTransient(&types.APIError{StatusCode: http.StatusBadGateway}))
	assert.False(t, IsTransient(&types.APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsTransient(&types.NetworkError{Err: context.Canceled}))
	assert.False(t, IsTransient(nil))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&types.APIError{StatusCode: 401}))
	assert.False(t, IsAuthError(&types.APIError{StatusCode: 403}))
	assert.False(t, IsAuthError(nil))
}

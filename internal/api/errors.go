package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// User-facing fallback messages.
const (
	MsgBadRequest   = "Bad request. Please check your input."
	MsgUnauthorized = "Invalid username or password."
	MsgForbidden    = "You are not allowed to access this resource."
	MsgNotFound     = "The requested resource was not found."
	MsgServer       = "Server error. Please try again later."
	MsgUnexpected   = "An unexpected error occurred."
	MsgNetwork      = "Unable to connect. Please try again later."

	// MsgNoPermission is the page-level text for a forbidden listing.
	MsgNoPermission = "You do not have permission to view this page."
)

// ClassifyError maps any error produced by this module to a closed kind and
// a display message. It is the only place that inspects status codes.
//
// Message precedence: first field-level message, then the envelope message,
// then a status-keyed generic message.
func ClassifyError(err error) types.Classified {
	if err == nil {
		return types.Classified{}
	}

	var ve *types.ValidationError
	if errors.As(err, &ve) {
		c := types.Classified{Kind: types.KindValidation, Message: MsgBadRequest, Fields: ve.Fields}
		if len(ve.Fields) > 0 {
			c.Message = ve.Fields[0].Message
		}
		return c
	}

	var ae *types.APIError
	if errors.As(err, &ae) {
		c := types.Classified{Kind: kindForStatus(ae.StatusCode), StatusCode: ae.StatusCode, Fields: ae.Fields}
		switch {
		case len(ae.Fields) > 0 && ae.Fields[0].Message != "":
			c.Message = ae.Fields[0].Message
		case ae.Message != "":
			c.Message = ae.Message
		default:
			c.Message = messageForStatus(ae.StatusCode)
		}
		return c
	}

	var ne *types.NetworkError
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return types.Classified{Kind: types.KindNetwork, Message: MsgNetwork}
	}

	if errors.Is(err, types.ErrNotFound) {
		return types.Classified{Kind: types.KindNotFound, Message: MsgNotFound, StatusCode: http.StatusNotFound}
	}
	if errors.Is(err, types.ErrNoCurrentUser) {
		return types.Classified{Kind: types.KindAuth, Message: MsgUnauthorized, StatusCode: http.StatusUnauthorized}
	}

	return types.Classified{Kind: types.KindServer, Message: MsgUnexpected}
}

func kindForStatus(status int) types.ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return types.KindAuth
	case http.StatusForbidden:
		return types.KindPermission
	case http.StatusNotFound:
		return types.KindNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return types.KindValidation
	default:
		return types.KindServer
	}
}

func messageForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return MsgBadRequest
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusForbidden:
		return MsgForbidden
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusInternalServerError:
		return MsgServer
	default:
		return MsgUnexpected
	}
}

// IsAuthError reports whether err means the session is not authenticated.
func IsAuthError(err error) bool {
	return err != nil && ClassifyError(err).Kind == types.KindAuth
}

// IsTransient reports whether retrying err may succeed: network failures
// other than cancellation, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ne *types.NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ae *types.APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= http.StatusInternalServerError
	}
	return false
}

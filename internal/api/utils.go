package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// LoginPath is where the shell sends unauthenticated requests.
const LoginPath = "/login"

const maxBodyBytes = 1_048_576

// ErrorResponse writes a standard JSON error response including request ID.
func ErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSONResponse(w, r, status, ErrorBody{
		Success:   false,
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// RenderError writes err following the error taxonomy: auth failures
// redirect to the login screen, permission failures are a page-level
// message, validation failures carry their fields and server or network
// failures are a dismissible notification.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	c := ClassifyError(err)
	body := ErrorBody{
		Success:   false,
		Error:     c.Message,
		Kind:      c.Kind,
		Fields:    c.Fields,
		RequestID: middleware.GetReqID(r.Context()),
	}

	var status int
	switch c.Kind {
	case types.KindAuth:
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	case types.KindPermission:
		status = http.StatusForbidden
	case types.KindNotFound:
		status = http.StatusNotFound
	case types.KindValidation:
		status = http.StatusUnprocessableEntity
		if c.StatusCode == http.StatusBadRequest || c.StatusCode == http.StatusConflict {
			status = c.StatusCode
		}
	case types.KindNetwork:
		status = http.StatusServiceUnavailable
		body.Dismissible = true
	default:
		status = http.StatusBadGateway
		body.Dismissible = true
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("kind", string(c.Kind)),
			slog.Any("error", err),
			slog.String("request_id", body.RequestID))
	}
	WriteJSONResponse(w, r, status, body)
}

// WriteJSONResponse encodes the data to JSON and writes the response header and body.
func WriteJSONResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	js, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to marshal JSON response",
			slog.Any("error", err),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response body",
			slog.Any("error", err),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
}

// DecodeJSONBody reads and decodes a JSON request body safely. Decoding
// failures are returned as a *types.ValidationError on the "body" field.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return bodyError(decodeMessage(err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return bodyError("body must only contain a single JSON value")
	}
	return nil
}

func bodyError(msg string) error {
	return &types.ValidationError{Fields: []types.FieldError{{Field: "body", Message: msg}}}
}

func decodeMessage(err error) string {
	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxError):
		return fmt.Sprintf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "body contains badly-formed JSON"
	case errors.As(err, &unmarshalTypeError):
		if unmarshalTypeError.Field != "" {
			return fmt.Sprintf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
		}
		return fmt.Sprintf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
	case errors.Is(err, io.EOF):
		return "body must not be empty"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		fieldName := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return fmt.Sprintf("body contains unknown key %q", fieldName)
	case errors.As(err, &maxBytesError):
		return fmt.Sprintf("body must not be larger than %d bytes", maxBytesError.Limit)
	default:
		return "error decoding JSON body"
	}
}

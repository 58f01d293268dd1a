package appMiddleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// ConfirmHeader carries the explicit confirmation of a destructive request.
const ConfirmHeader = "X-Confirm"

// Confirmed reports whether r carries an explicit confirmation, either as
// the X-Confirm header or the confirm query parameter.
func Confirmed(r *http.Request) bool {
	for _, v := range []string{r.Header.Get(ConfirmHeader), r.URL.Query().Get("confirm")} {
		if ok, err := strconv.ParseBool(v); err == nil && ok {
			return true
		}
	}
	return false
}

// RequireConfirmation answers 428 with a confirmation prompt unless the
// request is confirmed. The wrapped handler, and so the mutation, never runs
// for an unconfirmed request.
func RequireConfirmation(action string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Confirmed(r) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.ConfirmationsRequired.WithLabelValues(action).Inc()
			api.WriteJSONResponse(w, r, http.StatusPreconditionRequired, api.ConfirmationResponse{
				Error:                types.ErrConfirmationRequired.Error(),
				ConfirmationRequired: true,
				Action:               action,
				Message:              fmt.Sprintf("Are you sure you want to %s? Repeat the request with %s: true to continue.", action, ConfirmHeader),
			})
		})
	}
}

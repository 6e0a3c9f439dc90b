package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/service/authgw"
	"github.com/phrazzld/modelgate/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, authgw.ErrAuth):
		return http.StatusUnauthorized

	case errors.Is(err, authgw.ErrPermission):
		return http.StatusForbidden

	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for an
// error. Validation messages are already written to be client-safe; other
// errors collapse to a generic phrase.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, domain.ErrValidation):
		return err.Error()

	case errors.Is(err, authgw.ErrAuth):
		return "Authentication failed"

	case errors.Is(err, authgw.ErrPermission):
		return "Insufficient permissions"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrInvalidTransition):
		return err.Error()

	default:
		return "An unexpected error occurred"
	}
}

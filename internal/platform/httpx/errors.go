// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/taxdesk/taxdesk/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unrecognized errors deliberately surface no internal detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrPrecondition):
		Problem(w, http.StatusUnprocessableEntity, "Precondition Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrUpstream):
		Problem(w, http.StatusBadGateway, "Upstream Failure", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

package httpx

import (
	"errors"
	"net/http"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

// RespondError maps the shared error taxonomy onto status codes: bad input is
// 400, a missing debt/plan/penalty is 404, an illegal state transition is 409.
// Anything unwrapped stays a 500 with no detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

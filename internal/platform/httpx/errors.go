package httpx

import (
	"errors"
	"net/http"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var engineErr *shared.Error
	if errors.As(err, &engineErr) {
		status, title := statusFor(engineErr.Kind)
		JSON(w, status, ProblemDetail{
			Title:   title,
			Status:  status,
			Detail:  engineErr.Msg,
			Fields:  engineErr.Fields,
			Current: engineErr.Current,
			Allowed: engineErr.Allowed,
			RefID:   engineErr.RefID,
		})
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func statusFor(kind shared.Kind) (int, string) {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case shared.KindBadRequest:
		return http.StatusBadRequest, "Bad Request"
	case shared.KindForbidden:
		return http.StatusForbidden, "Forbidden"
	case shared.KindConflict:
		return http.StatusConflict, "Conflict"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"perm_tracker/internal/app"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrCaseAccessDenied), errors.Is(err, app.ErrNotificationAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, app.ErrUnknownJob), errors.Is(err, app.ErrUserNotFound), errors.Is(err, app.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrDeletionAlreadyScheduled),
		errors.Is(err, app.ErrDeletionNotScheduled),
		errors.Is(err, app.ErrGracePeriodExpired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &app.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

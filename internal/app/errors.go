package app

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")

	ErrCaseAccessDenied         = errors.New("Access denied: you do not own this case")
	ErrNotificationAccessDenied = errors.New("Access denied: you do not own this notification")

	ErrDeletionAlreadyScheduled = errors.New("Account deletion is already scheduled")
	ErrDeletionNotScheduled     = errors.New("Deletion was cancelled")
	ErrGracePeriodNotExpired    = errors.New("Grace period has not expired")
	ErrGracePeriodExpired       = errors.New("Grace period has already expired")
	ErrProfileNotFound          = errors.New("Profile not found")
	ErrUserNotFound             = errors.New("User not found")
)

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BulkResult tallies a bulk operation across many IDs.
type BulkResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *BulkResult) fail(id string, err error) {
	r.Failed++
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = err.Error()
}

package user

import "errors"

var (
	ErrNotFound            = errors.New("user not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrPreferencesNotFound = errors.New("notification preferences not found")
)

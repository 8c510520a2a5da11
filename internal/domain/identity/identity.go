// Package identity resolves who is calling.
package identity

import "context"

// Provider returns the current caller's user ID. ok is false when the caller
// is not authenticated.
type Provider interface {
	CurrentUserID(ctx context.Context) (userID string, ok bool)
}

// Package identity carries the authenticated user ID on the request context.
package identity

import "context"

type ctxKey struct{}

// WithUser returns a context that authenticates userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// ContextProvider reads the user placed on the context by WithUser.
type ContextProvider struct{}

func (ContextProvider) CurrentUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

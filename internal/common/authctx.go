package common

import "context"

type ctxKey string

const userIDKey ctxKey = "auth/user-id"

// WithUserID attaches the authenticated subject to the context. Only the auth
// middleware writes it; everything downstream reads through UserID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID reads back the authenticated subject, reporting whether one is set.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

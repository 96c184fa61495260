package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{ name string }

var userIDKey = &contextKey{"user_id"}

// UserIDFromContext returns the creator authenticated by Auth, or uuid.Nil on
// public routes.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey, userID)
}

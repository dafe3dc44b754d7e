// Package project carries request-scoped identity: which project the caller
// is acting in and which user they are.
package project

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	projectKey ctxKey = iota
	userKey
)

func WithProjectID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, projectKey, id)
}

func ProjectIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(projectKey).(uuid.UUID)
	return id, ok
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey, id)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey).(uuid.UUID)
	return id, ok
}

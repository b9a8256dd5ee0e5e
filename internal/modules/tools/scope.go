package tools

import (
	"context"

	"github.com/google/uuid"
)

// Scope tells implementations which workspace and documents a call may read.
// Built adapters are shared across workspaces, so the scope travels on ctx.
type Scope struct {
	WorkspaceID uuid.UUID
	ThreadID    uuid.UUID
	DocumentIDs []uuid.UUID
}

type scopeKey struct{}

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func ScopeFrom(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

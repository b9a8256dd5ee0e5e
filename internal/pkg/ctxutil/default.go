package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Detached keeps ctx's values (trace and request data) but drops its deadline and
// cancellation, for work that must outlive the caller.
func Detached(ctx context.Context) context.Context {
	return context.WithoutCancel(Default(ctx))
}

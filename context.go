package weft

import (
	"context"
	"net/http"
)

// Typed context helpers. The key is the value's type, so each type gets one
// slot per context and callers never collide on string keys.

type ctxSlot[T any] struct{}

// WithValue returns a context carrying val, keyed by its type.
func WithValue[T any](ctx context.Context, val T) context.Context {
	return context.WithValue(ctx, ctxSlot[T]{}, val)
}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](r *http.Request, val T) *http.Request {
	return r.WithContext(WithValue(r.Context(), val))
}

// GetValue retrieves a typed value from the context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(ctxSlot[T]{}).(T)
	return val, ok
}

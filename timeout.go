package weft

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrHandlerTimeout is the cancellation cause set when Timeout expires a
// request context. Handlers can distinguish it from client disconnects
// via context.Cause.
var ErrHandlerTimeout = errors.New("handler timeout")

// Timeout returns middleware that imposes a deadline on the request
// context. Handlers observe it through ctx.Done. A tighter deadline
// already present on the request is left alone.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if dl, ok := r.Context().Deadline(); ok && time.Until(dl) <= d {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeoutCause(r.Context(), d, ErrHandlerTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout applies the gateway's maximum request duration when the
// caller supplied no shorter deadline. Streaming responses run under
// the same ceiling.
func Timeout(max time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), max)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

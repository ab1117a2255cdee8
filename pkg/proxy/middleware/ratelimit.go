package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"lumenroute/prism/pkg/proxy/types"
)

// RateLimit applies a per-key token bucket. The key is the
// authenticated key label when auth ran, falling back to the remote
// address.
func RateLimit(enabled bool, rps float64, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[key] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := GetAPIKeyLabel(r.Context())
			if key == "" {
				key = r.RemoteAddr
				if host, _, err := net.SplitHostPort(key); err == nil {
					key = host
				}
			}

			if !limiterFor(key).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				writeStatic(w, types.NewError("rate_limit_error", "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

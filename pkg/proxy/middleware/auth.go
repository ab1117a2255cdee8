package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"lumenroute/prism/pkg/proxy/types"
)

// Auth validates the Authorization: Bearer <key> header against the
// configured key set. Health and metrics endpoints are exempted by the
// router, not here.
func Auth(enabled bool, apiKeys []string) func(http.Handler) http.Handler {
	keySet := make(map[string]bool, len(apiKeys))
	for _, key := range apiKeys {
		keySet[key] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			key, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || !matchKey(keySet, key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				body := types.NewError("authentication_error", "invalid or missing API key")
				writeStatic(w, body)
				return
			}

			// Store a stable non-secret label for logs and rate
			// limiting.
			sum := sha256.Sum256([]byte(key))
			label := hex.EncodeToString(sum[:6])
			ctx := context.WithValue(r.Context(), APIKeyKey, label)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matchKey compares in constant time per candidate.
func matchKey(keySet map[string]bool, key string) bool {
	for candidate := range keySet {
		if len(candidate) == len(key) && subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// GetAPIKeyLabel returns the hashed key label from the context, or "".
func GetAPIKeyLabel(ctx context.Context) string {
	if v, ok := ctx.Value(APIKeyKey).(string); ok {
		return v
	}
	return ""
}

// Package middleware provides the HTTP middleware chain: panic
// recovery, request logging, request IDs, CORS, bearer-key auth,
// per-key rate limiting, the request timeout ceiling, and body size
// limits. The chain is assembled inside-out by pkg/server.
package middleware

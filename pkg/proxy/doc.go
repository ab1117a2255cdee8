// Package proxy is the OpenAI-compatible HTTP skin over the gateway
// core: wire types, request/response conversion, SSE writers, and the
// error-to-status mapping. Handlers live in proxy/handlers, middleware
// in proxy/middleware.
package proxy

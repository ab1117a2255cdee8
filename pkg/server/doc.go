// Package server binds the HTTP listener, assembles the middleware
// chain, and mounts the OpenAI-compatible routes over the gateway
// core. Bind failures are distinguishable (ErrBindFailed) so the CLI
// can exit 3 on them.
package server

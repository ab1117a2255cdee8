// Package logging provides structured logging with credential
// redaction.
//
// The package wraps log/slog: one configured handler is installed as
// the process default so every component logs through it. When
// redaction is enabled, API keys and bearer tokens in log values are
// masked before they are written.
package logging

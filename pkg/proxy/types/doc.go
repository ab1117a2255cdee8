// Package types defines the OpenAI-shaped wire structures the gateway
// accepts and returns. Canonical (provider-agnostic) shapes live in
// pkg/providers; this package is only the inbound/outbound HTTP skin.
package types

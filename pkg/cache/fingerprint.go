package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"lumenroute/prism/pkg/providers"
)

// Field and record separators for the canonical form. Both are outside
// the printable range so no message content can collide with the
// structure of the form.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Cacheable reports whether a request is eligible for the response
// cache: embeddings always; chat and completion only when not streaming,
// at temperature zero (or unset), and with no randomness parameter set.
// Image generation and transcription are never cached.
func Cacheable(req providers.Request) bool {
	switch r := req.(type) {
	case *providers.EmbeddingRequest:
		return true
	case *providers.ChatRequest:
		if r.Stream {
			return false
		}
		if r.Temperature != nil && *r.Temperature != 0 {
			return false
		}
		return r.TopP == nil && r.PresencePenalty == nil && r.FrequencyPenalty == nil
	case *providers.CompletionRequest:
		if r.Stream {
			return false
		}
		if r.Temperature != nil && *r.Temperature != 0 {
			return false
		}
		return r.TopP == nil
	default:
		return false
	}
}

// Fingerprint returns the 256-bit cache key for the request as a hex
// string. It hashes the canonical form, so requests that differ only in
// numeric spelling (1 vs 1.0) share a key.
func Fingerprint(req providers.Request) string {
	sum := sha256.Sum256([]byte(CanonicalForm(req)))
	return hex.EncodeToString(sum[:])
}

// FingerprintHash returns the fingerprint folded to 64 bits, for
// consumers that need an integer (the ab-test strategy).
func FingerprintHash(req providers.Request) uint64 {
	sum := sha256.Sum256([]byte(CanonicalForm(req)))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}

// CanonicalForm renders the request deterministically: message order
// preserved, fields joined with unambiguous separators, numeric
// parameters printed at a fixed precision, the logical model included,
// and the provider hint included only when it pins selection. The form
// doubles as the stored discriminator that resolves hash collisions by
// byte equality.
func CanonicalForm(req providers.Request) string {
	var b strings.Builder

	b.WriteString(string(req.Operation()))
	b.WriteString(recordSep)
	b.WriteString(req.ModelName())
	b.WriteString(recordSep)
	if pin := req.Hints().PreferredProvider; pin != "" {
		b.WriteString("pin=")
		b.WriteString(pin)
		b.WriteString(recordSep)
	}

	switch r := req.(type) {
	case *providers.ChatRequest:
		for _, msg := range r.Messages {
			b.WriteString(msg.Role)
			b.WriteString(fieldSep)
			b.WriteString(msg.Content)
			b.WriteString(fieldSep)
			b.WriteString(msg.Name)
			b.WriteString(recordSep)
		}
		writeNum(&b, "temperature", r.Temperature)
		writeNum(&b, "top_p", r.TopP)
		if r.MaxTokens > 0 {
			b.WriteString("max_tokens" + fieldSep + strconv.Itoa(r.MaxTokens) + recordSep)
		}
		for _, stop := range r.Stop {
			b.WriteString("stop" + fieldSep + stop + recordSep)
		}

	case *providers.CompletionRequest:
		b.WriteString(r.Prompt)
		b.WriteString(recordSep)
		writeNum(&b, "temperature", r.Temperature)
		writeNum(&b, "top_p", r.TopP)
		if r.MaxTokens > 0 {
			b.WriteString("max_tokens" + fieldSep + strconv.Itoa(r.MaxTokens) + recordSep)
		}
		for _, stop := range r.Stop {
			b.WriteString("stop" + fieldSep + stop + recordSep)
		}

	case *providers.EmbeddingRequest:
		for _, input := range r.Input {
			b.WriteString(input)
			b.WriteString(recordSep)
		}
	}

	return b.String()
}

// writeNum canonicalises an optional float at 6 significant digits, so
// 1 and 1.0 render identically.
func writeNum(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "%s%s%.6g%s", name, fieldSep, *v, recordSep)
}

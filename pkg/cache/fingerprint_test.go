package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lumenroute/prism/pkg/providers"
)

func f(v float64) *float64 { return &v }

func chatReq(temp *float64) *providers.ChatRequest {
	return &providers.ChatRequest{
		Model:       "gpt-4",
		Messages:    []providers.Message{{Role: "user", Content: "hello"}},
		Temperature: temp,
	}
}

func TestCacheableRules(t *testing.T) {
	tests := []struct {
		name string
		req  providers.Request
		want bool
	}{
		{"embedding always", &providers.EmbeddingRequest{Model: "e", Input: []string{"x"}}, true},
		{"chat temp unset", chatReq(nil), true},
		{"chat temp zero", chatReq(f(0)), true},
		{"chat temp nonzero", chatReq(f(0.7)), false},
		{"chat streaming", &providers.ChatRequest{Model: "m", Stream: true, Messages: []providers.Message{{Role: "user", Content: "x"}}}, false},
		{"chat with top_p", &providers.ChatRequest{Model: "m", TopP: f(0.9), Messages: []providers.Message{{Role: "user", Content: "x"}}}, false},
		{"completion temp zero", &providers.CompletionRequest{Model: "m", Prompt: "x", Temperature: f(0)}, true},
		{"image never", &providers.ImageRequest{Model: "m", Prompt: "x"}, false},
		{"transcription never", &providers.TranscriptionRequest{Model: "m"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cacheable(tt.req))
		})
	}
}

func TestFingerprintNumericCanonicalisation(t *testing.T) {
	// 1 and 1.0 must hash identically.
	a := &providers.ChatRequest{
		Model:       "m",
		Messages:    []providers.Message{{Role: "user", Content: "x"}},
		Temperature: f(1),
	}
	b := &providers.ChatRequest{
		Model:       "m",
		Messages:    []providers.Message{{Role: "user", Content: "x"}},
		Temperature: f(1.0),
	}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintSensitivity(t *testing.T) {
	base := chatReq(f(0))

	differentModel := chatReq(f(0))
	differentModel.Model = "gpt-4o"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(differentModel))

	differentContent := chatReq(f(0))
	differentContent.Messages = []providers.Message{{Role: "user", Content: "hellp"}}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(differentContent))

	differentRole := chatReq(f(0))
	differentRole.Messages = []providers.Message{{Role: "system", Content: "hello"}}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(differentRole))

	// Role/content boundaries are unambiguous: moving a character
	// across the separator changes the hash.
	a := &providers.ChatRequest{Model: "m", Messages: []providers.Message{{Role: "user", Content: "ab"}}}
	b := &providers.ChatRequest{Model: "m", Messages: []providers.Message{{Role: "usera", Content: "b"}}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintHintPinning(t *testing.T) {
	plain := chatReq(f(0))

	pinned := chatReq(f(0))
	pinned.Routing.PreferredProvider = "openai"
	assert.NotEqual(t, Fingerprint(plain), Fingerprint(pinned))

	// A non-pinning hint does not change the key.
	regioned := chatReq(f(0))
	regioned.Routing.Region = "eu"
	assert.Equal(t, Fingerprint(plain), Fingerprint(regioned))
}

func TestFingerprintMessageOrder(t *testing.T) {
	a := &providers.ChatRequest{Model: "m", Messages: []providers.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
	}}
	b := &providers.ChatRequest{Model: "m", Messages: []providers.Message{
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "one"},
	}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

// Package providers implements the provider-agnostic adapter layer of
// the gateway.
//
// # Overview
//
// The package defines the canonical request and response shapes every
// other subsystem works with, the classified error taxonomy, and the
// Provider contract each dialect adapter implements. Dialect subpackages
// (openai, anthropic, azure, vertex, cohere, ollama, generic) are the
// only places provider-native wire shapes live.
//
// # Architecture
//
//  1. Canonical types - tagged request variants and normalized responses
//  2. Provider interface - the operation set plus a capability set
//  3. Base HTTP provider - connection pooling, header merging, failure
//     classification (no retries; retries belong to the driver)
//  4. Dialect adapters - request/response translation per provider
//
// # Basic Usage
//
//	p, err := openai.New(providers.Config{
//	    Name:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	resp, err := p.Chat(ctx, &providers.ChatRequest{
//	    Model:    "gpt-4",
//	    Messages: []providers.Message{{Role: providers.RoleUser, Content: "Hello!"}},
//	})
//
// Requests that fail canonical validation are rejected with a
// *providers.ValidationError; every other adapter error is a
// *providers.Error with a Kind the breaker and failover driver classify
// on.
package providers

// Package openai implements the OpenAI chat-completions dialect.
//
// The same wire dialect serves a family of hosted providers (OpenAI,
// Groq, Mistral, Perplexity, Together, OpenRouter); they differ only in
// base URL, credentials, and model maps, so the gateway instantiates
// this adapter for all of them.
package openai

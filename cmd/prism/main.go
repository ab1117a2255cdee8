// Prism is an LLM gateway: an OpenAI-compatible reverse proxy in front
// of many model providers with health-aware routing, per-provider
// circuit breakers, ordered failover, and a single-flight response
// cache.
//
// Usage:
//
//	# Start with a configuration file
//	prism run --config config.yaml
//
//	# Override the listen address
//	prism run --config config.yaml --host 0.0.0.0 --port 9090
//
//	# Parse and validate the configuration, then exit
//	prism run --config config.yaml --validate-only
//
//	# Show version information
//	prism version
//
// Exit codes: 0 clean shutdown, 2 bad configuration, 3 bind failure.
package main

func main() {
	Execute()
}

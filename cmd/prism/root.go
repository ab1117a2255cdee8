package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Prism - multi-provider LLM gateway",
	Long: `Prism is an OpenAI-compatible reverse proxy for LLM traffic.

It routes requests across many upstream providers (OpenAI, Anthropic,
Azure OpenAI, Google Vertex AI, Cohere, Groq, Mistral, Ollama, and
generic OpenAI-compatible endpoints), providing:

  - Health-aware routing with configurable strategies
  - Per-provider circuit breakers with automatic failover
  - Response caching with single-flight request coalescing
  - Streaming (SSE) passthrough with backpressure
  - Prometheus metrics and SQLite usage accounting`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/server"
	"lumenroute/prism/pkg/telemetry/logging"
)

// Exit codes.
const (
	exitBadConfig   = 2
	exitBindFailure = 3
)

var runFlags struct {
	host         string
	port         int
	validateOnly bool
	watchConfig  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the Prism gateway with the specified configuration.

Examples:
  # Start with a config file
  prism run --config config.yaml

  # Override the listen address
  prism run --host 127.0.0.1 --port 9090

  # Validate configuration and exit (0 on success, 2 on errors)
  prism run --config config.yaml --validate-only`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.host, "host", "", "override listen host")
	runCmd.Flags().IntVar(&runFlags.port, "port", 0, "override listen port")
	runCmd.Flags().BoolVar(&runFlags.validateOnly, "validate-only", false, "parse and validate config, then exit")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", true, "hot-reload provider flags on config change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadConfig)
	}

	if runFlags.host != "" {
		cfg.Server.Host = runFlags.host
	}
	if runFlags.port != 0 {
		cfg.Server.Port = runFlags.port
	}

	if runFlags.validateOnly {
		fmt.Println("configuration OK")
		return nil
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:         level,
		Format:        cfg.Logging.Format,
		RedactSecrets: true,
		Writer:        logOutput(cfg.Logging.Output),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadConfig)
	}
	logger.Install()

	g, err := gateway.New(cfg)
	if err != nil {
		slog.Error("gateway initialization failed", "error", err)
		os.Exit(exitBadConfig)
	}
	defer g.Close()

	var watcher *config.Watcher
	if runFlags.watchConfig {
		watcher, err = config.NewWatcher(cfgFile, g.ApplyConfig)
		if err != nil {
			slog.Warn("config watching disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, g)
	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, server.ErrBindFailed) {
			slog.Error("bind failure", "error", err)
			os.Exit(exitBindFailure)
		}
		return err
	}

	return nil
}

// logOutput resolves the configured log destination.
func logOutput(output string) *os.File {
	switch output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %q: %v; falling back to stdout\n", output, err)
			return os.Stdout
		}
		return f
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coflowd/internal/agent"
	"coflowd/internal/agent/config"
	"coflowd/internal/logger"
	"coflowd/internal/types"
	"coflowd/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	log = log.Named("agent")

	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	// Create context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create the agent; work-directory failure is fatal here
	a, err := agent.New(cfg, log)
	if err != nil {
		log.Error("Failed to create agent", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	// Run until shutdown or a fatal condition. The agent core never
	// exits the process itself; that decision lives here.
	if err := a.Run(ctx); err != nil {
		var fatal *types.FatalError
		if errors.As(err, &fatal) {
			log.Error("Agent terminated", zap.String("reason", fatal.Reason), zap.Error(fatal.Err))
		} else {
			log.Error("Agent terminated", zap.Error(err))
		}
		_ = log.Sync()
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}

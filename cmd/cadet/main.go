// Package main is the entry point for the cadet client daemon: it
// supervises the Cadence analysis process for a Flow workspace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/cadet/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, logLevel := parseFlags()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           logLevel,
		Prefix:          "cadet",
	})

	application, err := app.New(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger.Info("started",
		"workspace", opts.WorkspacePath,
		"emulator", application.Settings().EmulatorAddr)

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() (app.Options, log.Level) {
	var opts app.Options
	var verbose bool
	var showVersion bool

	flag.StringVar(&opts.SettingsPath, "config", "cadet.toml", "Path to settings file")
	flag.StringVar(&opts.SettingsPath, "c", "cadet.toml", "Path to settings file (shorthand)")
	flag.StringVar(&opts.WorkspacePath, "workspace", ".", "Flow project directory")
	flag.StringVar(&opts.WorkspacePath, "w", ".", "Flow project directory (shorthand)")
	flag.StringVar(&opts.FlowCommand, "flow", "", "Flow CLI binary (overrides settings)")
	flag.StringVar(&opts.EmulatorAddr, "emulator", "", "Emulator gRPC address (overrides settings)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "cadet - Cadence analysis-process supervisor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: cadet [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cadet -w ./my-project            Supervise a workspace\n")
		fmt.Fprintf(os.Stderr, "  cadet -emulator 127.0.0.1:3569   Point at a local emulator\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("cadet %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return opts, level
}

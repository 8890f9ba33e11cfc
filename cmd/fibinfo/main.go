package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tkjaer/fibinfo/internal/config"
	"github.com/tkjaer/fibinfo/internal/diag"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Debug("Starting fibinfo",
		"mode", args.Mode,
		"source", args.Source(),
		"destinations", len(args.Destinations),
	)

	runner, err := diag.NewRunner(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create runner: %v\n", err)
		os.Exit(1)
	}

	// Set up signal handling for Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run in a goroutine so we can handle signals
	done := make(chan error)
	go func() {
		done <- runner.Run()
	}()

	// Wait for either completion or interrupt
	select {
	case err = <-done:
		if err != nil {
			slog.Error("Runner error", "error", err)
			os.Exit(1)
		}
	case <-sigChan:
		slog.Debug("Received interrupt signal, stopping...")
		runner.Stop()
		// Wait for Run() to finish cleanup
		if err = <-done; err != nil {
			slog.Error("Error during shutdown", "error", err)
			os.Exit(1)
		}
	}

	slog.Debug("fibinfo completed")
}

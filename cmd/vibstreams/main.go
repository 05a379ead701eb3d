// Package main implements the entry point for the VibStreams service.
// VibStreams is a real-time condition monitoring pipeline for rotating
// machinery: it ingests binary DAQ frames from NATS, records them, and
// fans computed vibration features out to live subscribers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/vibstreams/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vibstreams"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting VibStreams (vibration stream processing)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	svc, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	slog.Info("VibStreams started successfully (frame pipeline ready)")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := svc.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("VibStreams shutdown complete")
	return nil
}

// loadConfig loads the configuration file, or defaults when no path
// was given.
func loadConfig(path string) (service.Config, error) {
	if path == "" {
		return service.DefaultConfig(), nil
	}
	return service.LoadConfig(path)
}

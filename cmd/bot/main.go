package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hfcRed/Agent-8s-sub001/internal/bot"
	"github.com/hfcRed/Agent-8s-sub001/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logging
	config.SetupLogging(cfg.LogLevel)

	slog.Info("Starting Eights Bot", "capacity", cfg.Capacity, "testMode", cfg.TestMode)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start the bot
	b, err := bot.New(cfg)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		slog.Error("Failed to start bot", "error", err)
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run(ctx)
	}()

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-runErr:
		slog.Error("Background worker failed", "error", err)
	}

	slog.Info("Shutting down...")

	// Sessions are torn down while the workers still deliver events
	n := b.Shutdown()
	slog.Info("Sessions shut down", "count", n)

	cancel()

	// Stop the bot gracefully
	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	slog.Info("Bot stopped")
}

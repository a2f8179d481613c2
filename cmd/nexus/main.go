// Command nexus is the financial data aggregation service.
//
// It reads configuration from environment variables (or config.yaml) and
// starts the HTTP facade on the configured port.
//
// Quick-start (filesystem cache, no external dependencies):
//
//	FMP_KEY=... ./nexus
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omnidata/nexus/internal/app"
	"github.com/omnidata/nexus/internal/config"
	"github.com/omnidata/nexus/internal/logsan"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration — exits with a descriptive error if required vars are missing.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build the structured logger. All subsystems share this instance; the
	// sanitizing handler keeps API keys out of every log line.
	logger := buildLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	// Initialise and run the application.
	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("service stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildLogger constructs a sanitized JSON slog.Logger for the given level
// string. Unknown level strings default to INFO. A non-empty logFile routes
// output to a size-rotated file instead of stdout.
func buildLogger(level, logFile string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if logFile != "" {
		out = logsan.NewRotatingWriter(logFile)
	}

	inner := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug, // include file:line only in debug mode
	})
	return slog.New(logsan.NewHandler(inner))
}

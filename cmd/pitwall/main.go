// Command pitwall is the GT7 pit wall server: it receives console telemetry,
// fans it out to dashboard clients, records sessions to disk, and runs the
// voice race engineer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rennlabs/pitwall/internal/app"
	"github.com/rennlabs/pitwall/internal/config"
	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/pkg/provider/voice"
	"github.com/rennlabs/pitwall/pkg/provider/voice/gemini"
)

// version is stamped by the build; local builds report "dev".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// A missing file is not an error: defaults plus PS5_IP/WS_PORT apply.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitwall: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	slog.Info("pitwall starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	// Registered before the app so every subsystem binds real instruments.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "pitwall",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to init metrics provider", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Credential store ──────────────────────────────────────────────────────
	store, err := config.OpenStore(cfg.Engineer.CredentialsPath, logger)
	if err != nil {
		slog.Error("failed to open credential store", "err", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("credential store close error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	providers := app.Providers{
		Dial: func(apiKey string) voice.Provider {
			return gemini.New(apiKey, gemini.WithModel(cfg.Engineer.Model))
		},
		Creds: store,
	}
	application, err := app.New(cfg, logger, observe.DefaultMetrics(), providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, store)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, store *config.Store) {
	console := cfg.Telemetry.ConsoleAddr
	if console == "" {
		console = "(discovery)"
	}
	state := store.State()
	keyState := "not configured"
	if state.HasAPIKey {
		keyState = "configured"
	}
	engineerState := "off"
	if state.EngineerEnabled {
		engineerState = "on"
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        pitwall — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Console", console)
	printRow("Telemetry port", fmt.Sprintf("%d", cfg.Telemetry.ListenPort))
	printRow("Dashboard", cfg.Server.ListenAddr)
	printRow("Broadcast", fmt.Sprintf("%d Hz", cfg.Telemetry.BroadcastHz))
	printRow("Race log dir", cfg.RaceLog.Dir)
	printRow("Voice model", cfg.Engineer.Model)
	printRow("Personality", cfg.Engineer.DefaultPersonality)
	printRow("Engineer", engineerState)
	printRow("API key", keyState)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

// ── Logger ──────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

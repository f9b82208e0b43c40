package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/anthropic"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/api"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/config"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/events"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/extractor"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/ledger"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/revision"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/session"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("extractd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Database (optional — without it the service keeps working in memory:
	// lineage and prompt history are simply not persisted).
	var db *store.Store
	var prompts session.PromptStore
	if cfg.DatabaseURL != "" {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			slog.Warn("migrations failed, continuing without persistence", "error", err)
		} else if s, err := store.New(ctx, cfg.DatabaseURL); err != nil {
			slog.Warn("database unavailable, continuing without persistence", "error", err)
		} else {
			db = s
			prompts = s
			defer db.Close()
			slog.Info("database connected")
		}
	} else {
		slog.Warn("DATABASE_URL not set — running without persistence")
	}

	// NATS (optional)
	var pub *events.Publisher
	if cfg.NatsURL != "" {
		p, err := events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS unavailable, continuing without events", "error", err)
		} else {
			pub = p
			defer pub.Close()
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	ctrl := session.NewController(
		extractor.New(llm, slog.Default()),
		revision.New(llm, slog.Default()),
		ledger.New(docStore(db), slog.Default()),
		prompts,
		pub,
		session.Options{
			UseCase:     cfg.UseCase,
			UserID:      cfg.UserID,
			MaxDocBytes: cfg.MaxDocBytes,
		},
		slog.Default(),
	)

	// HTTP API
	srv := api.NewServer(cfg.Port, ctrl, db, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("extractd ready", "port", cfg.Port, "use_case", cfg.UseCase)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("extractd stopped")
}

// docStore keeps a nil *store.Store from becoming a non-nil interface.
func docStore(db *store.Store) ledger.DocumentStore {
	if db == nil {
		return nil
	}
	return db
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

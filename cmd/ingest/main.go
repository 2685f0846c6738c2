package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/medical-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("ingest", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewIngest(ctx, cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	counts, err := app.Importer.ImportAll(ctx)
	if err != nil {
		slog.Error("corpus_import_failed", "imported", counts, "error", err)
		os.Exit(1)
	}

	stored, err := app.Store.CountByDomain(ctx)
	if err != nil {
		slog.Error("corpus_count_failed", "error", err)
		os.Exit(1)
	}
	slog.Info("corpus_import_completed", "imported", counts, "stored", stored, "snapshot", cfg.CorpusSnapshot)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/adapters/contract"
	"github.com/kirillkom/medical-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, workerMetrics.Pipeline)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	initCtx := ctx
	if cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, cfg.InitTimeout)
		defer cancel()
	}
	err = app.Service.Initialize(initCtx)
	workerMetrics.Pipeline.RecordInitialization(app.Service.Status().Domains, err)
	if err != nil {
		slog.Error("worker_initialization_failed", "error", err)
		os.Exit(1)
	}

	bus, err := app.NewQueryBus()
	if err != nil {
		slog.Error("query_bus_failed", "error", err)
		os.Exit(1)
	}

	queries := contract.NewQueryHandler(app.Service, workerMetrics.Pipeline)
	err = bus.ServeQueries(ctx, func(handlerCtx context.Context, payload []byte) ([]byte, error) {
		queryCtx, cancel := context.WithTimeout(handlerCtx, cfg.NATSRequestTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartQuery()
		reply, err := queries.HandlePayload(queryCtx, payload)
		workerMetrics.FinishQuery("worker", time.Since(start), err)
		return reply, err
	})
	if err != nil {
		slog.Error("worker_serve_failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/medical-rag-assistant/internal/adapters/http"
	"github.com/kirillkom/medical-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, httpMetrics.Pipeline)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var dispatcher httpadapter.QueryDispatcher
	if cfg.QueryDispatch == "nats" {
		bus, err := app.NewQueryBus()
		if err != nil {
			slog.Error("query_bus_failed", "error", err)
			os.Exit(1)
		}
		dispatcher = bus
	} else if cfg.InitOnStart {
		go initializeInBackground(app, cfg, httpMetrics)
	}

	router := httpadapter.NewRouter(cfg, app.Service, httpMetrics, dispatcher).Handler()
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.APIQueryTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		slog.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "query_dispatch", cfg.QueryDispatch)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

// initializeInBackground builds the indexes without blocking the listener. A
// failure leaves the service in the failed state, retriable via the API.
func initializeInBackground(app *bootstrap.App, cfg config.Config, httpMetrics *metrics.HTTPServerMetrics) {
	ctx := context.Background()
	if cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.InitTimeout)
		defer cancel()
	}
	err := app.Service.Initialize(ctx)
	if domain.IsKind(err, domain.ErrInitializing) {
		return
	}
	httpMetrics.Pipeline.RecordInitialization(app.Service.Status().Domains, err)
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirillkom/medical-rag-assistant/internal/adapters/contract"
	mcpadapter "github.com/kirillkom/medical-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/medical-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.InitOnStart {
		go func() {
			ctx := context.Background()
			if cfg.InitTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.InitTimeout)
				defer cancel()
			}
			if err := app.Service.Initialize(ctx); err != nil {
				slog.Error("mcp_initialization_failed", "error", err)
			}
		}()
	}

	server := mcpadapter.NewServer(cfg.MCPServerName, app.Service, contract.NewQueryHandler(app.Service, nil), cfg.InitTimeout)
	if err := server.Serve(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timerd/internal/api"
	"timerd/internal/config"
	"timerd/internal/core"
	"timerd/internal/logging"
	timerdmcp "timerd/internal/mcp"
	"timerd/internal/notify"
	"timerd/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// In mcp and both modes stdout carries the MCP protocol, so logs go
	// to stderr in every mode.
	logger := logging.New(os.Stderr, cfg.LogLevel)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	sink, err := buildSink(cfg, logger)
	if err != nil {
		logger.Error("configure notification sink", "err", err)
		os.Exit(1)
	}

	engine := core.NewEngine(storeInst, sink, logger, location, cfg.TickInterval)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	engine.Start(ctx)

	switch cfg.Mode {
	case "mcp":
		runMCPMode(cfg, engine, logger, cancel)
	case "both":
		runBothMode(cfg, engine, logger)
	default:
		runHTTPMode(cfg, engine, logger)
	}
}

// buildSink picks the notification sink: a rate-limited webhook when an
// endpoint is configured, the structured log otherwise.
func buildSink(cfg *config.Config, logger *slog.Logger) (core.Sink, error) {
	if cfg.Webhook.URL == "" {
		return notify.NewLog(logger), nil
	}
	webhook, err := notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.RatePerSec)
	if err != nil {
		return nil, err
	}
	return notify.NewMulti(webhook, notify.NewLog(logger)), nil
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, engine *core.Engine, logger *slog.Logger) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, engine, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(cfg, engine, server, logger)
}

// runMCPMode starts only the MCP server on stdio.
func runMCPMode(cfg *config.Config, engine *core.Engine, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := timerdmcp.NewMCPServer(engine, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}

	shutdown(cfg, engine, nil, logger)
}

// runBothMode starts the HTTP server and the MCP server together.
func runBothMode(cfg *config.Config, engine *core.Engine, logger *slog.Logger) {
	mcpServer := timerdmcp.NewMCPServer(engine, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, engine, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(cfg, engine, server, logger)
}

func shutdown(cfg *config.Config, engine *core.Engine, server *api.Server, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}

	engine.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/dataops-sh/snowdeck/internal/shell/api"
)

// serveCmd runs the HTTP status API until SIGINT/SIGTERM.
func serveCmd(args []string, cfg *Config, logger *slog.Logger) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: snowdeck serve")
		return ExitUsageError
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	defer svc.Close()

	handler := api.NewHandler(api.Config{
		Orchestrator:  svc.orch,
		Registry:      svc.registry,
		History:       svc.history,
		AppsDir:       appsDir(cfg),
		DefaultBranch: cfg.Repo.Branch,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			"address", cfg.Server.Address(),
			"version", Version,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
		return ExitServerError
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return ExitSuccess
}

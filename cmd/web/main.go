// Command web serves the tracker API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fundtracker/internal/config"
	"fundtracker/internal/infrastructure"
	"fundtracker/internal/metrics"
	"fundtracker/internal/services"
	transport "fundtracker/internal/transport/http"
	"fundtracker/pkg/contracts"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	logger.Info("Starting "+contracts.GetVersionString(),
		slog.String("commit", contracts.GitCommit))

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := services.NewTrackerService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load feeds: %w", err)
	}

	collector := metrics.NewCollector()
	report := service.LoadReport()
	collector.RecordFeedLoad("transactions", report.TransactionsAccepted, report.TransactionsRejected)
	collector.RecordFeedLoad("annotations", report.AnnotationsAccepted, report.AnnotationsRejected)
	collector.RecordFeedLoad("versions", report.VersionsAccepted, report.VersionsRejected)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      transport.NewRouter(cfg, logger, service, collector),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("default_frequency", service.DefaultFrequency().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

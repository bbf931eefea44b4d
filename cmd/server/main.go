package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/muninn/internal"
	"github.com/dukerupert/muninn/internal/audit"
	"github.com/dukerupert/muninn/internal/email"
	"github.com/dukerupert/muninn/internal/handler"
	"github.com/dukerupert/muninn/internal/middleware"
	"github.com/dukerupert/muninn/internal/router"
	"github.com/dukerupert/muninn/internal/storage"
	"github.com/dukerupert/muninn/internal/telemetry"
	"github.com/dukerupert/muninn/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	clock := clockwork.NewRealClock()

	// Initialize attachment staging storage
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("storage initialized", "provider", cfg.Storage.Provider)

	// Audit trail
	recorder := audit.NewRecorder(cfg.Audit.BasePath, clock)

	// Dispatch pipeline
	metrics := telemetry.NewMetrics("muninn", prometheus.DefaultRegisterer)
	resolver := email.NewResolver(store)
	assembler := email.NewAssembler(cfg.SMTP.SenderEmail, cfg.SMTP.SenderDomain, clock)
	transport := email.NewClient(cfg.SMTP)
	dispatcher := email.NewDispatcher(resolver, assembler, transport, recorder, logger, metrics)

	pool := worker.NewPool(dispatcher, worker.Config{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}, logger, metrics)

	// The pool outlives the shutdown signal so admitted jobs finish
	// delivering during the drain.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	pool.Start(dispatchCtx)

	// HTTP surface
	httpMetrics := middleware.NewMetrics("muninn", prometheus.DefaultRegisterer)
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithClientIP(),
		middleware.WithRequestLogger(logger),
		httpMetrics.Handler,
		router.Logger(logger),
	)

	mailHandler := handler.NewMailHandler(pool, store, recorder, clock, logger)

	apiKey := middleware.RequireAPIKey(cfg.APIKey)
	r.Post("/mail/send", mailHandler.Send, apiKey)
	r.Post("/mail/send-with-attachments", mailHandler.SendWithAttachments, apiKey)
	r.Get("/mail/outcome/{email_id}", mailHandler.Outcome, apiKey)

	r.Get("/healthz", handler.Health)
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Stop accepting submissions first, then drain the dispatch queue so
	// every admitted job still reaches a terminal state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	pool.Stop()

	logger.Info("shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

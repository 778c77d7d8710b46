// Package app orchestrates the application components' lifecycle: the HTTP
// server, webhook registration, and the task scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/groupflow/internal/config"
	"github.com/edgard/groupflow/internal/tasks"
	"github.com/edgard/groupflow/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

// App owns the running components and coordinates graceful shutdown.
type App struct {
	logger    *slog.Logger
	cfg       *config.Config
	handler   http.Handler
	clients   []*telegram.Client
	scheduler *tasks.Scheduler
}

// New creates the application orchestrator.
func New(logger *slog.Logger, cfg *config.Config, handler http.Handler,
	clients []*telegram.Client, scheduler *tasks.Scheduler,
) *App {
	return &App{
		logger:    logger.With("component", "app"),
		cfg:       cfg,
		handler:   handler,
		clients:   clients,
		scheduler: scheduler,
	}
}

// Run starts all components and blocks until the context is canceled or a
// component fails. Webhooks are registered on startup so a restarted
// instance always serves with its current secret and callback URL.
func (a *App) Run(ctx context.Context) error {
	for _, c := range a.clients {
		if err := c.InstallWebhook(ctx); err != nil {
			// Startup registration is best effort; the monitor task and the
			// admin endpoint can repair it later.
			a.logger.Warn("Initial webhook registration failed", "bot", string(c.ID()), "error", err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("Starting HTTP server", "addr", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Error stopping HTTP server", "error", err)
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully")
	return nil
}

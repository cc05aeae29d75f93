package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/webscan/internal/infra/httpserver"
	"github.com/bryanwahyu/webscan/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		store := middleware.StoreHealthChecker{Store: a.store}
		health := a.engineCheckers()
		health["store"] = store

		handler := httpserver.NewRouter(a.service, httpserver.Options{
			Logger:              logger,
			Metrics:             a.metrics,
			APIKeys:             cfg.Server.APIKeys,
			CORSOrigins:         cfg.Server.CORSOrigins,
			RateRPS:             cfg.Server.RateLimit.RPS,
			RateBurst:           cfg.Server.RateLimit.Burst,
			MaxBodyBytes:        cfg.Server.MaxBodyBytes,
			AllowPrivateTargets: cfg.Server.AllowPrivateTargets,
			Health:              health,
			Ready:               map[string]middleware.HealthChecker{"store": store},
		})

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}
		logger.Info("shutting down server...")

		// in-flight scans keep running until they finish or the timeout hits
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

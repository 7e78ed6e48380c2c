package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/mvad/internal/server"
)

func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API for preparing shards over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = fmt.Sprintf(":%d", a.cfg.Port)
			}
			return serve(cmd.Context(), a, addr)
		},
	}
	c.Flags().String("addr", "", "listen address (default \":$PORT\")")
	return c
}

func serve(ctx context.Context, a *app, addr string) error {
	handlers := server.NewHandlers(a.deps.Jobs, a.logger)
	router := server.NewRouter(handlers, a.logger)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
			slog.Int("max_concurrent_shards", a.cfg.MaxConcurrentShards),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	a.logger.Info("shutting down server...")
	a.deps.Jobs.CancelAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	a.logger.Info("server stopped gracefully")
	return nil
}

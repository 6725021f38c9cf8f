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

	"listingsync/internal/api"
	"listingsync/internal/scheduler"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the status sync scheduler and the OAuth flow sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	cfg, logger := a.cfg, a.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.oauth.RunSweeper(ctx, cfg.OAuth.SweepInterval)

	sched := scheduler.NewScheduler(a.publisher, scheduler.Config{
		Interval:   cfg.Publish.SyncInterval,
		StaleHours: cfg.Publish.StaleHours,
	}, logger)
	go sched.Start()
	defer sched.Stop()

	router := api.NewRouter(api.RouterConfig{
		Publisher:          a.publisher,
		Storage:            a.store,
		Registry:           a.registry,
		Revoker:            a.oauth,
		APIKey:             cfg.Security.APIKey,
		ReturnURLBase:      cfg.OAuth.ReturnURLBase,
		RateLimitPerMinute: cfg.Security.RateLimitPerMinute,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		sched.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("HTTP server stopped")
	}

	return nil
}

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

	"github.com/warp/statement-engine/api"
	"github.com/warp/statement-engine/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background daily scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().Bool("no-scheduler", false, "disable the background daily scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.WithComponent("server")
	cfg := a.cfg

	port := cfg.Server.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}

	handler := api.NewHandler(a.engine, a.scheduler, a.dispatcher, logger.WithComponent("api"))
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: api.AuthConfig{
			Enabled:   cfg.Auth.Enabled,
			JWTSecret: cfg.Auth.JWTSecret,
			JWTIssuer: cfg.Auth.JWTIssuer,
			APIKey:    cfg.Auth.APIKey,
		},
		RateLimit:  cfg.RateLimit.Requests,
		RateWindow: cfg.RateLimit.Window,
	})

	daily := api.NewDailyScheduler(a.scheduler, logger.WithComponent("scheduler"))
	daily.CheckInterval = cfg.Scheduler.CheckInterval
	daily.Enabled = cfg.Scheduler.Enabled
	if off, _ := cmd.Flags().GetBool("no-scheduler"); off {
		daily.Enabled = false
	}
	daily.Start()
	defer daily.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", port).Str("timezone", cfg.Timezone).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

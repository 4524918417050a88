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

	"github.com/joho/godotenv"

	"github.com/wolfman30/medici-leads/cmd/mainconfig"
	"github.com/wolfman30/medici-leads/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

func main() {
	// .env is optional outside of local development
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medici-leads API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx := context.Background()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		defer sqlDB.Close()
	}

	awsCfg, err := mainconfig.LoadOptionalAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Infra{Redis: redisClient, Pool: pool, AWS: awsCfg}, sqlDB, logger)
	if err != nil {
		return err
	}

	inProcessDelivery := cfg.UseMemoryQueue || cfg.DeliveryQueueURL == ""
	supervisor := app.Supervise(bootstrap.NewSupervisor(logger), inProcessDelivery)
	if err := supervisor.Start(ctx); err != nil {
		return err
	}

	srv := newHTTPServer(cfg.Port, app.Handler)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.Error("background workers did not stop", "error", err)
	}
	app.Dispatcher.Wait()
	logger.Info("server stopped")
	return nil
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	if port == "" {
		port = "8080"
	}
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

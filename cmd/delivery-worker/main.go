package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/medici-leads/cmd/mainconfig"
	"github.com/wolfman30/medici-leads/internal/app/bootstrap"
	"github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).Component("delivery-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UseMemoryQueue || cfg.DeliveryQueueURL == "" {
		logger.Error("delivery worker requires DELIVERY_QUEUE_URL and USE_MEMORY_QUEUE=false")
		os.Exit(1)
	}

	pool, _, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dm := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)
	delivery, err := bootstrap.BuildDelivery(ctx, cfg, bootstrap.Infra{Redis: redisClient, Pool: pool, AWS: &awsCfg}, dm, logger)
	if err != nil {
		logger.Error("failed to build delivery", "error", err)
		os.Exit(1)
	}

	supervisor := bootstrap.NewSupervisor(logger).Add("webhook-runner", func(ctx context.Context) {
		delivery.Runner.Start(ctx)
		<-ctx.Done()
		delivery.Runner.Wait()
	})
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("failed to start runner", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("delivery worker shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.Error("runner did not stop cleanly", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/internal/webhooks"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const attemptLogKey = "medici:webhooks:attempts"

// Delivery groups the outbound webhook components shared by the API and the
// delivery workers.
type Delivery struct {
	Destinations webhooks.DestinationStore
	Queue        webhooks.Queue
	Jobs         webhooks.JobStore
	AttemptLog   webhooks.AttemptLog
	Sender       *webhooks.Sender
	Dispatcher   *webhooks.Dispatcher
	Runner       *webhooks.Runner
}

// Infra carries the optional backing services. Any field may be nil.
type Infra struct {
	Redis *redis.Client
	Pool  *pgxpool.Pool
	AWS   *aws.Config
}

// BuildDelivery wires destinations, queue, job store and sender. SQS and
// DynamoDB are used when configured; otherwise in-process fallbacks.
func BuildDelivery(ctx context.Context, cfg *appconfig.Config, infra Infra, dm *metrics.DeliveryMetrics, logger *logging.Logger) (*Delivery, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	d := &Delivery{}

	if infra.Pool != nil {
		d.Destinations = webhooks.NewPostgresDestinationStore(infra.Pool)
	} else {
		d.Destinations = webhooks.NewMemoryDestinationStore()
	}
	if path := strings.TrimSpace(cfg.DestinationsFile); path != "" {
		seeds, err := webhooks.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		created, err := webhooks.Seed(ctx, d.Destinations, seeds)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: seed destinations: %w", err)
		}
		logger.Info("webhook destinations seeded", "file", path, "created", created, "total", len(seeds))
	}

	if infra.Redis != nil {
		d.AttemptLog = webhooks.NewRedisAttemptLog(infra.Redis, attemptLogKey, cfg.AttemptLogSize)
	} else {
		d.AttemptLog = webhooks.NewMemoryAttemptLog(cfg.AttemptLogSize)
	}

	useSQS := !cfg.UseMemoryQueue && cfg.DeliveryQueueURL != "" && infra.AWS != nil
	if useSQS {
		d.Queue = webhooks.NewSQSQueue(sqs.NewFromConfig(*infra.AWS), cfg.DeliveryQueueURL)
		logger.Info("webhook delivery queue: sqs", "queue_url", cfg.DeliveryQueueURL)
	} else {
		d.Queue = webhooks.NewMemoryQueue(256)
		logger.Info("webhook delivery queue: in-memory")
	}

	if cfg.DeliveryJobsTable != "" && infra.AWS != nil {
		d.Jobs = webhooks.NewDynamoJobStore(dynamodb.NewFromConfig(*infra.AWS), cfg.DeliveryJobsTable)
	} else {
		d.Jobs = webhooks.NewMemoryJobStore()
	}

	d.Sender = webhooks.NewSender(d.AttemptLog, logger).
		WithAttemptTimeout(cfg.WebhookTimeout).
		WithMetrics(dm)
	d.Dispatcher = webhooks.NewDispatcher(d.Destinations, d.Queue, d.Jobs, d.Sender, logger).
		WithFanOut(cfg.WorkerCount)
	d.Runner = webhooks.NewRunner(d.Queue, d.Destinations, d.Sender, d.Jobs, logger,
		webhooks.WithRunnerWorkers(cfg.WorkerCount),
		webhooks.WithReceiveBatchSize(cfg.DeliveryBatchSize),
	)
	return d, nil
}

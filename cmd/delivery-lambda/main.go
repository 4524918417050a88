package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/medici-leads/cmd/mainconfig"
	"github.com/wolfman30/medici-leads/internal/app/bootstrap"
	"github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// processor executes one encoded delivery job.
type processor interface {
	Process(ctx context.Context, body string) error
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).Component("delivery-lambda")
	ctx := context.Background()

	pool, _, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)

	delivery, err := bootstrap.BuildDelivery(ctx, cfg, bootstrap.Infra{Redis: redisClient, Pool: pool, AWS: &awsCfg}, nil, logger)
	if err != nil {
		panic(err)
	}

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, delivery.Runner, logger, evt), nil
	})
}

// handle runs every record and reports malformed ones as batch item
// failures so SQS redrives them to the dead-letter queue.
func handle(ctx context.Context, p processor, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		if err := p.Process(ctx, record.Body); err != nil {
			logger.Error("delivery job rejected", "message_id", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}

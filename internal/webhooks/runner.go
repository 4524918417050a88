package webhooks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

const (
	defaultRunnerWorkers = 4
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type runnerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// RunnerOption customizes runner behavior.
type RunnerOption func(*runnerConfig)

// WithRunnerWorkers sets the number of concurrent consumer goroutines.
func WithRunnerWorkers(count int) RunnerOption {
	return func(cfg *runnerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) RunnerOption {
	return func(cfg *runnerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) RunnerOption {
	return func(cfg *runnerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Runner consumes delivery jobs and executes them with the sender's retry
// policy, off the request path.
type Runner struct {
	queue  Queue
	store  DestinationStore
	sender *Sender
	jobs   JobStore
	logger *logging.Logger

	cfg runnerConfig
	wg  sync.WaitGroup
}

func NewRunner(queue Queue, store DestinationStore, sender *Sender, jobs JobStore, logger *logging.Logger, opts ...RunnerOption) *Runner {
	if queue == nil {
		panic("webhooks: queue cannot be nil")
	}
	if store == nil {
		panic("webhooks: destination store cannot be nil")
	}
	if sender == nil {
		panic("webhooks: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := runnerConfig{
		workers:          defaultRunnerWorkers,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{
		queue:  queue,
		store:  store,
		sender: sender,
		jobs:   jobs,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the consumer goroutines.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.workers; i++ {
		r.wg.Add(1)
		go r.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, workerID int) {
	defer r.wg.Done()
	r.logger.Debug("delivery worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("delivery worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := r.queue.Receive(ctx, r.cfg.receiveBatchSize, r.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("failed to receive delivery jobs", "error", err, "worker_id", workerID)
			if wait(ctx, backoff) != nil {
				return
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Runner) handleMessage(ctx context.Context, msg QueueMessage) {
	if err := r.Process(ctx, msg.Body); err != nil {
		r.logger.Error("dropping undecodable delivery job", "error", err, "message_id", msg.ID)
	}
	r.deleteMessage(context.Background(), msg.ReceiptHandle)
}

// Process executes one encoded job. Only a malformed body is an error;
// delivery outcomes are recorded, not returned.
func (r *Runner) Process(ctx context.Context, body string) error {
	job, err := decodeJob(body)
	if err != nil {
		return err
	}

	dest, err := r.store.Get(ctx, job.DestinationID)
	if err != nil {
		r.logger.Warn("webhook destination unavailable, skipping job", "error", err, "job_id", job.ID, "webhook_id", job.DestinationID)
		r.finish(ctx, job, JobStatusSkipped, 0, err.Error())
		return nil
	}
	if !dest.Enabled {
		r.finish(ctx, job, JobStatusSkipped, 0, "destination disabled")
		return nil
	}

	res := r.sender.Deliver(ctx, *dest, job.Payload)
	switch {
	case res.Skipped:
		r.finish(ctx, job, JobStatusSkipped, 0, errString(res.Err))
	case res.Success:
		r.finish(ctx, job, JobStatusDelivered, res.Attempts, "")
	default:
		r.logger.Error("webhook delivery failed", "job_id", job.ID, "webhook_id", dest.ID, "attempts", res.Attempts, "error", res.Err)
		r.finish(ctx, job, JobStatusFailed, res.Attempts, errString(res.Err))
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, job Job, status JobStatus, attempts int, errMsg string) {
	if r.jobs == nil {
		return
	}
	if err := r.jobs.MarkFinished(ctx, job.ID, status, attempts, errMsg); err != nil {
		r.logger.Warn("failed to record webhook job status", "error", err, "job_id", job.ID, "status", status)
	}
}

func (r *Runner) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := r.queue.Delete(deleteCtx, receiptHandle); err != nil {
		r.logger.Error("failed to delete delivery job", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

const defaultFanOut = 8

// Dispatcher fans events out to subscribed destinations by enqueueing one
// delivery job per destination.
type Dispatcher struct {
	store  DestinationStore
	queue  Queue
	jobs   JobStore
	sender *Sender
	logger *logging.Logger
	fanOut int
}

func NewDispatcher(store DestinationStore, queue Queue, jobs JobStore, sender *Sender, logger *logging.Logger) *Dispatcher {
	if store == nil {
		panic("webhooks: destination store required")
	}
	if queue == nil {
		panic("webhooks: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:  store,
		queue:  queue,
		jobs:   jobs,
		sender: sender,
		logger: logger,
		fanOut: defaultFanOut,
	}
}

// WithFanOut bounds concurrent enqueues.
func (d *Dispatcher) WithFanOut(n int) *Dispatcher {
	if n > 0 {
		d.fanOut = n
	}
	return d
}

// Trigger enqueues payload for every enabled destination subscribed to
// event. Destinations are independent: a failure to enqueue one does not
// stop the others. It returns the number of jobs enqueued.
func (d *Dispatcher) Trigger(ctx context.Context, event Event, payload Payload) (int, error) {
	destinations, err := d.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("webhooks: load destinations: %w", err)
	}
	if payload.Event == "" {
		payload.Event = event
	}

	var (
		g        errgroup.Group
		enqueued atomic.Int32
		mu       sync.Mutex
		failures []error
	)
	g.SetLimit(d.fanOut)

	for _, dest := range destinations {
		if !dest.Enabled || !dest.Subscribed(event) {
			continue
		}
		dest := dest
		g.Go(func() error {
			if err := d.enqueue(ctx, dest, event, payload); err != nil {
				d.logger.Error("failed to enqueue webhook job", "error", err, "webhook_id", dest.ID, "event", event)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			enqueued.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(enqueued.Load()), errors.Join(failures...)
}

func (d *Dispatcher) enqueue(ctx context.Context, dest Destination, event Event, payload Payload) error {
	job, body, err := encodeJob(Job{
		ID:            uuid.NewString(),
		DestinationID: dest.ID,
		Event:         event,
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	if d.jobs != nil {
		if err := d.jobs.PutPending(ctx, &JobRecord{JobID: job.ID, DestinationID: dest.ID, Event: event}); err != nil {
			d.logger.Warn("failed to record pending webhook job", "error", err, "job_id", job.ID)
		}
	}
	return d.queue.Send(ctx, body)
}

// SendTest delivers a test payload to one destination synchronously.
func (d *Dispatcher) SendTest(ctx context.Context, id string, data map[string]any) (Result, error) {
	if d.sender == nil {
		return Result{}, errors.New("webhooks: sender not configured")
	}
	dest, err := d.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	payload := NewPayload(EventTest, uuid.NewString(), data)
	payload.Message = "Test notification from Medici"
	return d.sender.Deliver(ctx, *dest, payload), nil
}

package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Observer reacts to dispatched events. Lower priorities run first.
type Observer interface {
	Name() string
	Priority() int
	Handles(t Type) bool
	Handle(ctx context.Context, ev Event) error
}

// Publisher accepts events for dispatch.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher routes events to registered observers in priority order.
// A failing or panicking observer never stops the rest.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *logging.Logger
	inflight  sync.WaitGroup
}

var _ Publisher = (*Dispatcher)(nil)

func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{logger: logger}
}

// Register adds observers, keeping the list sorted by priority. Observers
// with equal priority run in registration order.
func (d *Dispatcher) Register(observers ...Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range observers {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
	sort.SliceStable(d.observers, func(i, j int) bool {
		return d.observers[i].Priority() < d.observers[j].Priority()
	})
}

// Observers returns the registered names in run order.
func (d *Dispatcher) Observers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.observers))
	for _, o := range d.observers {
		names = append(names, o.Name())
	}
	return names
}

// Dispatch runs every observer subscribed to ev.Type and joins their errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	observers := append([]Observer(nil), d.observers...)
	d.mu.RUnlock()

	var errs []error
	for _, o := range observers {
		if !o.Handles(ev.Type) {
			continue
		}
		if err := d.invoke(ctx, o, ev); err != nil {
			d.logger.Error("event observer failed",
				"observer", o.Name(),
				"event_type", ev.Type,
				"event_id", ev.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(ctx context.Context, o Observer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return o.Handle(ctx, ev)
}

// Publish dispatches ev in the background, detached from the caller's
// cancellation. Use Wait to drain on shutdown.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	bg := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		_ = d.Dispatch(bg, ev)
	}()
	return nil
}

// Wait blocks until background dispatches finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Worker is a background loop that runs until its context is cancelled.
type Worker struct {
	Name string
	Run  func(ctx context.Context)
}

// Supervisor starts background loops and waits for them on shutdown.
type Supervisor struct {
	logger  *logging.Logger
	workers []Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewSupervisor(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{logger: logger}
}

// Add registers a worker. Workers with a nil Run are ignored.
func (s *Supervisor) Add(name string, run func(ctx context.Context)) *Supervisor {
	if run != nil {
		s.workers = append(s.workers, Worker{Name: name, Run: run})
	}
	return s
}

// Names lists registered workers in start order.
func (s *Supervisor) Names() []string {
	names := make([]string, 0, len(s.workers))
	for _, w := range s.workers {
		names = append(names, w.Name)
	}
	return names
}

// Start launches every worker. A panicking worker is logged and does not
// take the process down.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("bootstrap: supervisor already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		w := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("background worker panicked", "worker", w.Name, "panic", fmt.Sprint(r))
				}
			}()
			s.logger.Info("background worker started", "worker", w.Name)
			w.Run(ctx)
			s.logger.Info("background worker stopped", "worker", w.Name)
		}()
	}
	return nil
}

// Stop cancels the workers and blocks until they return or ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bootstrap: workers did not stop: %w", ctx.Err())
	}
}

// Supervise registers the App's background loops: the outbox deliverer and,
// with an in-process queue, the webhook runner.
func (a *App) Supervise(s *Supervisor, inProcessDelivery bool) *Supervisor {
	if a.Deliverer != nil {
		s.Add("outbox-deliverer", a.Deliverer.Start)
	}
	if inProcessDelivery && a.Delivery != nil && a.Delivery.Runner != nil {
		runner := a.Delivery.Runner
		s.Add("webhook-runner", func(ctx context.Context) {
			runner.Start(ctx)
			<-ctx.Done()
			runner.Wait()
		})
	}
	return s
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Manager fans a lead out to every configured channel.
type Manager struct {
	channels []Channel
	metrics  *metrics.DeliveryMetrics
	logger   *logging.Logger
}

func NewManager(logger *logging.Logger, channels ...Channel) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{logger: logger}
	for _, ch := range channels {
		if ch != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

func (m *Manager) WithMetrics(dm *metrics.DeliveryMetrics) *Manager {
	m.metrics = dm
	return m
}

// SendAll sends lead to every configured channel concurrently. One
// channel's failure does not affect the others.
func (m *Manager) SendAll(ctx context.Context, lead *leads.Lead) []Result {
	var configured []Channel
	for _, ch := range m.channels {
		if ch.Configured() {
			configured = append(configured, ch)
		}
	}
	results := make([]Result, len(configured))

	var g errgroup.Group
	for i, ch := range configured {
		i, ch := i, ch
		g.Go(func() error {
			res := Result{Channel: ch.Name(), Success: true}
			if err := ch.Send(ctx, lead); err != nil {
				res.Success = false
				res.Error = err.Error()
				m.logger.Warn("notification channel failed", "channel", ch.Name(), "lead_id", lead.ID, "error", err)
			}
			m.metrics.ObserveChannel(ch.Name(), res.Success)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// NotifyLead sends to all channels and reports failed ones as an error.
func (m *Manager) NotifyLead(ctx context.Context, lead *leads.Lead) error {
	var errs []error
	for _, res := range m.SendAll(ctx, lead) {
		if !res.Success {
			errs = append(errs, fmt.Errorf("%s: %s", res.Channel, res.Error))
		}
	}
	return errors.Join(errs...)
}

// Status reports which channels are configured.
func (m *Manager) Status() map[string]bool {
	out := make(map[string]bool, len(m.channels))
	for _, ch := range m.channels {
		out[ch.Name()] = ch.Configured()
	}
	return out
}

// StatusHandler serves GET /admin/notifications/status.
func (m *Manager) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"channels": m.Status()})
}

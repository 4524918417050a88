package crm

import (
	"context"
	"fmt"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/internal/webhooks"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Sink receives leads that qualify for CRM sync.
type Sink interface {
	Push(ctx context.Context, data scoring.CRMData) error
}

// SyncMarker records that a lead reached the CRM.
type SyncMarker interface {
	MarkCRMSynced(ctx context.Context, id string) error
}

// Gate applies the scoring threshold before handing leads to a sink.
type Gate struct {
	scorer *scoring.Scorer
	sink   Sink
	marker SyncMarker
	logger *logging.Logger
}

func NewGate(scorer *scoring.Scorer, sink Sink, marker SyncMarker, logger *logging.Logger) *Gate {
	if scorer == nil {
		panic("crm: scorer required")
	}
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{scorer: scorer, sink: sink, marker: marker, logger: logger}
}

// Forward pushes lead to the sink when it qualifies and reports whether it
// was synced.
func (g *Gate) Forward(ctx context.Context, lead *leads.Lead) (bool, error) {
	data := g.scorer.CRMData(lead)
	if !data.Sync {
		g.logger.Debug("lead below crm threshold", "lead_id", lead.ID, "score", lead.Score, "threshold", g.scorer.Threshold())
		return false, nil
	}
	if err := g.sink.Push(ctx, data); err != nil {
		return false, fmt.Errorf("crm: push lead %s: %w", lead.ID, err)
	}
	if g.marker != nil {
		if err := g.marker.MarkCRMSynced(ctx, lead.ID); err != nil {
			return true, fmt.Errorf("crm: mark synced: %w", err)
		}
	}
	lead.CRMSynced = true
	return true, nil
}

// NoopSink accepts everything and forwards nothing.
type NoopSink struct{}

func (NoopSink) Push(context.Context, scoring.CRMData) error { return nil }

// WebhookSink posts CRM data to an operator-configured endpoint with the
// webhook retry policy.
type WebhookSink struct {
	sender *webhooks.Sender
	dest   webhooks.Destination
}

func NewWebhookSink(sender *webhooks.Sender, url string) *WebhookSink {
	return &WebhookSink{
		sender: sender,
		dest: webhooks.Destination{
			ID:       "crm",
			Name:     "CRM",
			URL:      url,
			Enabled:  true,
			AuthType: webhooks.AuthNone,
			Trusted:  true,
		},
	}
}

// WithAuth attaches credentials to CRM requests.
func (s *WebhookSink) WithAuth(authType webhooks.AuthType, value string) *WebhookSink {
	s.dest.AuthType = authType
	s.dest.AuthValue = value
	return s
}

func (s *WebhookSink) Push(ctx context.Context, data scoring.CRMData) error {
	res := s.sender.Deliver(ctx, s.dest, webhooks.NewPayload(webhooks.EventNewLead, data.LeadID, data))
	if !res.Success {
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("crm: delivery failed after %d attempts", res.Attempts)
	}
	return nil
}

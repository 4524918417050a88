package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/webhooks"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Observer priorities. Lower runs first.
const (
	PriorityAudit    = 1
	PriorityArchive  = 3
	PriorityCRM      = 5
	PriorityNotify   = 10
	PriorityLiveFeed = 50
	PriorityWebhooks = 100
)

var errNoLead = errors.New("events: event carries no lead")

// base holds the bookkeeping shared by the adapters below.
type base struct {
	name     string
	priority int
	types    []Type
}

func (b base) Name() string  { return b.name }
func (b base) Priority() int { return b.priority }

func (b base) Handles(t Type) bool {
	for _, candidate := range b.types {
		if candidate == t {
			return true
		}
	}
	return false
}

var allTypes = []Type{TypeNewLead, TypeLeadStatusChanged, TypeNewsletterSubscribe}

// AuditRecorder persists an event trail.
type AuditRecorder interface {
	Record(ctx context.Context, eventType, subjectID string, details map[string]any) error
}

type auditObserver struct {
	base
	recorder AuditRecorder
}

// NewAuditObserver records every event before anything else runs.
func NewAuditObserver(recorder AuditRecorder) Observer {
	return &auditObserver{base: base{"audit", PriorityAudit, allTypes}, recorder: recorder}
}

func (o *auditObserver) Handle(ctx context.Context, ev Event) error {
	details := map[string]any{"event_id": ev.ID}
	if ev.Lead != nil {
		details["status"] = string(ev.Lead.Status)
		details["score"] = ev.Lead.Score
		details["score_label"] = ev.Lead.ScoreLabel
		details["origin"] = ev.Lead.Origin
	}
	if ev.OldStatus != "" {
		details["old_status"] = string(ev.OldStatus)
		details["new_status"] = string(ev.NewStatus)
	}
	if ev.Subscriber != nil {
		details["source"] = ev.Subscriber.Source
	}
	return o.recorder.Record(ctx, string(ev.Type), ev.SubjectID(), details)
}

// LeadArchiver stores a copy of each new lead.
type LeadArchiver interface {
	ArchiveLead(ctx context.Context, lead *leads.Lead) error
}

type archiveObserver struct {
	base
	archiver LeadArchiver
}

func NewArchiveObserver(archiver LeadArchiver) Observer {
	return &archiveObserver{base: base{"archive", PriorityArchive, []Type{TypeNewLead}}, archiver: archiver}
}

func (o *archiveObserver) Handle(ctx context.Context, ev Event) error {
	if ev.Lead == nil {
		return errNoLead
	}
	return o.archiver.ArchiveLead(ctx, ev.Lead)
}

// CRMForwarder applies the sync threshold and forwards qualifying leads.
type CRMForwarder interface {
	Forward(ctx context.Context, lead *leads.Lead) (bool, error)
}

type crmObserver struct {
	base
	forwarder CRMForwarder
	logger    *logging.Logger
}

func NewCRMObserver(forwarder CRMForwarder, logger *logging.Logger) Observer {
	if logger == nil {
		logger = logging.Default()
	}
	return &crmObserver{base: base{"crm", PriorityCRM, []Type{TypeNewLead}}, forwarder: forwarder, logger: logger}
}

func (o *crmObserver) Handle(ctx context.Context, ev Event) error {
	if ev.Lead == nil {
		return errNoLead
	}
	synced, err := o.forwarder.Forward(ctx, ev.Lead)
	if err != nil {
		return err
	}
	o.logger.Debug("crm gate evaluated", "lead_id", ev.Lead.ID, "synced", synced)
	return nil
}

// LeadNotifier fans a lead out to operator notification channels.
type LeadNotifier interface {
	NotifyLead(ctx context.Context, lead *leads.Lead) error
}

type notifyObserver struct {
	base
	notifier LeadNotifier
}

func NewNotifyObserver(notifier LeadNotifier) Observer {
	return &notifyObserver{base: base{"notify", PriorityNotify, []Type{TypeNewLead}}, notifier: notifier}
}

func (o *notifyObserver) Handle(ctx context.Context, ev Event) error {
	if ev.Lead == nil {
		return errNoLead
	}
	return o.notifier.NotifyLead(ctx, ev.Lead)
}

// Broadcaster pushes messages to connected admin clients.
type Broadcaster interface {
	Broadcast(v any) error
}

type liveFeedObserver struct {
	base
	hub Broadcaster
}

func NewLiveFeedObserver(hub Broadcaster) Observer {
	return &liveFeedObserver{base: base{"livefeed", PriorityLiveFeed, allTypes}, hub: hub}
}

func (o *liveFeedObserver) Handle(_ context.Context, ev Event) error {
	return o.hub.Broadcast(ev)
}

// WebhookTrigger enqueues outbound deliveries.
type WebhookTrigger interface {
	Trigger(ctx context.Context, event webhooks.Event, payload webhooks.Payload) (int, error)
}

type webhookObserver struct {
	base
	trigger WebhookTrigger
}

func NewWebhookObserver(trigger WebhookTrigger) Observer {
	return &webhookObserver{base: base{"webhooks", PriorityWebhooks, allTypes}, trigger: trigger}
}

func (o *webhookObserver) Handle(ctx context.Context, ev Event) error {
	payload, err := WebhookPayload(ev)
	if err != nil {
		return err
	}
	_, err = o.trigger.Trigger(ctx, payload.Event, payload)
	return err
}

// WebhookPayload maps a domain event onto the outbound body.
func WebhookPayload(ev Event) (webhooks.Payload, error) {
	switch ev.Type {
	case TypeNewLead:
		if ev.Lead == nil {
			return webhooks.Payload{}, errNoLead
		}
		return webhooks.NewPayload(webhooks.EventNewLead, ev.Lead.ID, ev.Lead), nil
	case TypeLeadStatusChanged:
		return webhooks.StatusChangedPayload(ev.SubjectID(), string(ev.OldStatus), string(ev.NewStatus)), nil
	case TypeNewsletterSubscribe:
		return webhooks.NewPayload(webhooks.EventNewsletterSubscribe, "", ev.Subscriber), nil
	}
	return webhooks.Payload{}, fmt.Errorf("events: no webhook mapping for %q", ev.Type)
}

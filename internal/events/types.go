package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medici-leads/internal/leads"
)

// Type names a domain event routed through the dispatcher.
type Type string

const (
	TypeNewLead             Type = "new_lead"
	TypeLeadStatusChanged   Type = "lead_status_changed"
	TypeNewsletterSubscribe Type = "newsletter_subscribe"
)

// Event is the envelope handed to observers.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Lead       *leads.Lead       `json:"lead,omitempty"`
	Subscriber *leads.Subscriber `json:"subscriber,omitempty"`
	OldStatus  leads.Status      `json:"old_status,omitempty"`
	NewStatus  leads.Status      `json:"new_status,omitempty"`
}

func newEvent(t Type) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

// NewLeadCreated announces an accepted lead.
func NewLeadCreated(lead *leads.Lead) Event {
	ev := newEvent(TypeNewLead)
	ev.Lead = lead
	return ev
}

// LeadStatusChanged announces a lifecycle transition.
func LeadStatusChanged(lead *leads.Lead, oldStatus leads.Status) Event {
	ev := newEvent(TypeLeadStatusChanged)
	ev.Lead = lead
	ev.OldStatus = oldStatus
	if lead != nil {
		ev.NewStatus = lead.Status
	}
	return ev
}

// NewsletterSubscribed announces a new subscriber.
func NewsletterSubscribed(sub *leads.Subscriber) Event {
	ev := newEvent(TypeNewsletterSubscribe)
	ev.Subscriber = sub
	return ev
}

// SubjectID is the lead or subscriber id the event is about.
func (e Event) SubjectID() string {
	switch {
	case e.Lead != nil:
		return e.Lead.ID
	case e.Subscriber != nil:
		return e.Subscriber.ID
	}
	return ""
}

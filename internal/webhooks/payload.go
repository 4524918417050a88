package webhooks

import "time"

// Payload is the JSON body posted to destinations.
type Payload struct {
	Event     Event  `json:"event"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewPayload stamps an event body with the current time in RFC3339.
func NewPayload(event Event, id string, data any) Payload {
	return Payload{
		Event:     event,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// StatusChangedPayload describes a lead lifecycle transition.
func StatusChangedPayload(leadID, oldStatus, newStatus string) Payload {
	p := NewPayload(EventLeadStatusChanged, leadID, nil)
	p.OldStatus = oldStatus
	p.NewStatus = newStatus
	return p
}

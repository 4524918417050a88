package webhooks

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrDestinationNotFound = errors.New("webhooks: destination not found")
	ErrInvalidDestination  = errors.New("webhooks: invalid destination")
)

// Event names a deliverable domain event.
type Event string

const (
	EventNewLead             Event = "new_lead"
	EventLeadStatusChanged   Event = "lead_status_changed"
	EventNewsletterSubscribe Event = "newsletter_subscribe"
	EventTest                Event = "test"
)

// SubscribableEvents are the events a destination may opt into.
var SubscribableEvents = []Event{EventNewLead, EventLeadStatusChanged, EventNewsletterSubscribe}

// AuthType selects how credentials are attached to a request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
)

// Destination is a configured outbound webhook.
type Destination struct {
	ID            string            `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	URL           string            `json:"url" yaml:"url"`
	Events        []Event           `json:"events" yaml:"events"`
	Enabled       bool              `json:"enabled" yaml:"enabled"`
	AuthType      AuthType          `json:"auth_type" yaml:"auth_type"`
	AuthValue     string            `json:"auth_value,omitempty" yaml:"auth_value"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers"`

	// Trusted destinations are operator-configured and bypass the egress allow-list.
	Trusted bool `json:"trusted" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Subscribed reports whether the destination should receive event.
// Test events reach every destination.
func (d *Destination) Subscribed(event Event) bool {
	if event == EventTest {
		return true
	}
	for _, e := range d.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Normalize trims fields, drops unknown events and unsafe headers, then
// checks the result.
func (d *Destination) Normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	d.URL = strings.TrimSpace(d.URL)
	d.AuthValue = strings.TrimSpace(d.AuthValue)

	switch d.AuthType {
	case AuthBearer, AuthBasic, AuthAPIKey:
	default:
		d.AuthType = AuthNone
	}

	events := make([]Event, 0, len(d.Events))
	seen := make(map[Event]bool, len(d.Events))
	for _, e := range d.Events {
		e = Event(strings.ToLower(strings.TrimSpace(string(e))))
		if seen[e] || !isSubscribable(e) {
			continue
		}
		seen[e] = true
		events = append(events, e)
	}
	d.Events = events

	headers := make(map[string]string, len(d.CustomHeaders))
	for k, v := range d.CustomHeaders {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		headers[k] = v
	}
	d.CustomHeaders = headers

	if d.Name == "" {
		return errors.Join(ErrInvalidDestination, errors.New("name is required"))
	}
	u, err := url.Parse(d.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errors.Join(ErrInvalidDestination, errors.New("url must be an absolute http(s) URL"))
	}
	return nil
}

func isSubscribable(e Event) bool {
	for _, known := range SubscribableEvents {
		if e == known {
			return true
		}
	}
	return false
}

// applyHeaders sets transport, auth and custom headers on req.
func (d *Destination) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	if d.AuthValue != "" {
		switch d.AuthType {
		case AuthBearer:
			req.Header.Set("Authorization", "Bearer "+d.AuthValue)
		case AuthBasic:
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(d.AuthValue)))
		case AuthAPIKey:
			req.Header.Set("X-API-Key", d.AuthValue)
		}
	}
	for k, v := range d.CustomHeaders {
		req.Header.Set(k, v)
	}
}

// RedactedAuthValue replaces stored credentials in API responses.
const RedactedAuthValue = "********"

// Redacted hides the credential for API responses.
func (d Destination) Redacted() Destination {
	if d.AuthValue != "" {
		d.AuthValue = RedactedAuthValue
	}
	return d
}

// keepsCredential reports whether an update should retain the stored
// credential: the caller sent it back redacted or left it blank while still
// using an authenticated scheme.
func (d *Destination) keepsCredential() bool {
	if d.AuthType == AuthNone {
		return false
	}
	return d.AuthValue == "" || d.AuthValue == RedactedAuthValue
}

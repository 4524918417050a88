package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/webhooks"
)

type recordingObserver struct {
	name     string
	priority int
	types    []Type
	err      error
	panics   bool
	order    *[]string
	mu       sync.Mutex
	seen     []Event
}

func (o *recordingObserver) Name() string  { return o.name }
func (o *recordingObserver) Priority() int { return o.priority }
func (o *recordingObserver) Handles(t Type) bool {
	for _, c := range o.types {
		if c == t {
			return true
		}
	}
	return false
}

func (o *recordingObserver) Handle(_ context.Context, ev Event) error {
	o.mu.Lock()
	o.seen = append(o.seen, ev)
	if o.order != nil {
		*o.order = append(*o.order, o.name)
	}
	o.mu.Unlock()
	if o.panics {
		panic("boom")
	}
	return o.err
}

func TestDispatcher_RunsInPriorityOrder(t *testing.T) {
	var order []string
	d := NewDispatcher(nil)
	d.Register(
		&recordingObserver{name: "webhooks", priority: PriorityWebhooks, types: allTypes, order: &order},
		&recordingObserver{name: "audit", priority: PriorityAudit, types: allTypes, order: &order},
		&recordingObserver{name: "notify", priority: PriorityNotify, types: []Type{TypeNewLead}, order: &order},
	)

	require.NoError(t, d.Dispatch(context.Background(), NewLeadCreated(&leads.Lead{ID: "l"})))
	assert.Equal(t, []string{"audit", "notify", "webhooks"}, order)

	order = nil
	require.NoError(t, d.Dispatch(context.Background(), NewsletterSubscribed(&leads.Subscriber{ID: "s"})))
	assert.Equal(t, []string{"audit", "webhooks"}, order)
}

func TestDispatcher_IsolatesFailuresAndPanics(t *testing.T) {
	last := &recordingObserver{name: "last", priority: 100, types: allTypes}
	d := NewDispatcher(nil)
	d.Register(
		&recordingObserver{name: "fails", priority: 1, types: allTypes, err: errors.New("down")},
		&recordingObserver{name: "panics", priority: 2, types: allTypes, panics: true},
		last,
	)

	err := d.Dispatch(context.Background(), NewLeadCreated(&leads.Lead{ID: "l"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fails: down")
	assert.Contains(t, err.Error(), "panics: observer panic")
	assert.Len(t, last.seen, 1)
}

func TestDispatcher_PublishRunsInBackground(t *testing.T) {
	obs := &recordingObserver{name: "o", priority: 1, types: allTypes}
	d := NewDispatcher(nil)
	d.Register(obs)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Publish(ctx, NewLeadCreated(&leads.Lead{ID: "l"})))
	cancel()
	d.Wait()

	assert.Len(t, obs.seen, 1)
}

type fakeTrigger struct {
	events   []webhooks.Event
	payloads []webhooks.Payload
}

func (f *fakeTrigger) Trigger(_ context.Context, e webhooks.Event, p webhooks.Payload) (int, error) {
	f.events = append(f.events, e)
	f.payloads = append(f.payloads, p)
	return 1, nil
}

func TestWebhookObserver_MapsEvents(t *testing.T) {
	trig := &fakeTrigger{}
	obs := NewWebhookObserver(trig)

	lead := &leads.Lead{ID: "lead-1", Status: leads.StatusContacted}
	require.NoError(t, obs.Handle(context.Background(), NewLeadCreated(lead)))
	require.NoError(t, obs.Handle(context.Background(), LeadStatusChanged(lead, leads.StatusNew)))
	require.NoError(t, obs.Handle(context.Background(), NewsletterSubscribed(&leads.Subscriber{Email: "a@b.co"})))

	assert.Equal(t, []webhooks.Event{webhooks.EventNewLead, webhooks.EventLeadStatusChanged, webhooks.EventNewsletterSubscribe}, trig.events)
	assert.Equal(t, "lead-1", trig.payloads[0].ID)
	assert.Equal(t, "new", trig.payloads[1].OldStatus)
	assert.Equal(t, "contacted", trig.payloads[1].NewStatus)
	assert.NotEmpty(t, trig.payloads[2].Timestamp)
}

type fakeAudit struct {
	eventType string
	subject   string
	details   map[string]any
}

func (f *fakeAudit) Record(_ context.Context, eventType, subjectID string, details map[string]any) error {
	f.eventType, f.subject, f.details = eventType, subjectID, details
	return nil
}

func TestAuditObserver_RecordsStatusChange(t *testing.T) {
	rec := &fakeAudit{}
	obs := NewAuditObserver(rec)
	require.True(t, obs.Handles(TypeLeadStatusChanged))

	lead := &leads.Lead{ID: "lead-1", Status: leads.StatusClosed}
	require.NoError(t, obs.Handle(context.Background(), LeadStatusChanged(lead, leads.StatusQualified)))
	assert.Equal(t, "lead_status_changed", rec.eventType)
	assert.Equal(t, "lead-1", rec.subject)
	assert.Equal(t, "qualified", rec.details["old_status"])
}

func TestLeadObserversRejectMissingLead(t *testing.T) {
	ev := Event{Type: TypeNewLead}
	assert.ErrorIs(t, NewArchiveObserver(nil).Handle(context.Background(), ev), errNoLead)
	assert.ErrorIs(t, NewNotifyObserver(nil).Handle(context.Background(), ev), errNoLead)
	assert.ErrorIs(t, NewCRMObserver(nil, nil).Handle(context.Background(), ev), errNoLead)
}

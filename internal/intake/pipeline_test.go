package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medici-leads/internal/dedup"
	"github.com/wolfman30/medici-leads/internal/events"
	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func scenarioA() leads.Submission {
	return leads.Submission{
		Name:      "Jane Doe",
		Email:     "jane@biz.com",
		Phone:     "0991234567",
		Consent:   true,
		UTMSource: "ig",
	}
}

type fixture struct {
	repo     *leads.InMemoryRepository
	subs     *leads.InMemorySubscriberRepository
	pub      *recordingPublisher
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := leads.NewInMemoryRepository()
	subs := leads.NewInMemorySubscriberRepository()
	pub := &recordingPublisher{}
	p := NewPipeline(repo, scoring.NewScorer(true, 40, repo), pub, logging.New("error")).
		WithSubscribers(subs)
	return &fixture{repo: repo, subs: subs, pub: pub, pipeline: p}
}

func TestPipeline_SubmitAcceptsScenarioA(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Submit(context.Background(), "203.0.113.1", leads.OriginForm, scenarioA())
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, res.Outcome)
	require.NotEmpty(t, res.LeadID)
	assert.Contains(t, res.Warnings, leads.NormalizeSource("ig").Warning("utm_source"))

	lead, err := f.repo.GetByID(context.Background(), res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "instagram", lead.UTM.Source)
	assert.Equal(t, leads.StatusNew, lead.Status)
	assert.Equal(t, leads.OriginForm, lead.Origin)
	assert.Equal(t, res.Score, lead.Score)
	assert.Equal(t, string(scoring.LabelFor(lead.Score)), lead.ScoreLabel)

	want := scoring.Calculate(scoring.InputFromLead(lead))
	assert.Equal(t, want, lead.Score, "stored score matches a fresh computation")

	assert.Equal(t, []events.Type{events.TypeNewLead}, f.pub.types())
}

func TestPipeline_SubmitRejectsHoneypot(t *testing.T) {
	f := newFixture(t)
	raw := scenarioA()
	raw.Website = "http://spam.example"

	res, err := f.pipeline.Submit(context.Background(), "203.0.113.1", leads.OriginForm, raw)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Errors, leads.MsgSpamDetected)
	assert.Empty(t, f.pub.types())

	stored, err := f.repo.List(context.Background(), leads.ListLeadsFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestPipeline_SubmitRejectsOversizedFields(t *testing.T) {
	f := newFixture(t)
	raw := scenarioA()
	raw.Phone = "+38099123456789012345"

	res, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, []string{`Field "phone" is too long (max 20 characters)`}, res.Errors)
}

func TestPipeline_Throttles(t *testing.T) {
	f := newFixture(t)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, logging.New("error"))
	f.pipeline.WithLimiter(limiter)

	first, err := f.pipeline.Submit(context.Background(), "198.51.100.7", leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, first.Outcome)

	second, err := f.pipeline.Submit(context.Background(), "198.51.100.7", leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeThrottled, second.Outcome)
	assert.Equal(t, 429, StatusFor(second.Outcome))
}

func TestPipeline_DuplicatePolicies(t *testing.T) {
	tests := []struct {
		policy      dedup.Policy
		wantOutcome Outcome
		wantWarning bool
	}{
		{dedup.PolicyAllow, OutcomeAccepted, false},
		{dedup.PolicyWarn, OutcomeAccepted, true},
		{dedup.PolicyReject, OutcomeDuplicate, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t)
			f.pipeline.WithDuplicates(dedup.NewDetector(f.repo, time.Hour), tt.policy)

			first, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, scenarioA())
			require.NoError(t, err)

			second, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, scenarioA())
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, second.Outcome)
			assert.Equal(t, first.LeadID, second.DuplicateOf)
			hasWarning := false
			for _, w := range second.Warnings {
				if w == "Possible duplicate of lead "+first.LeadID {
					hasWarning = true
				}
			}
			assert.Equal(t, tt.wantWarning, hasWarning)
		})
	}
}

type brokenFinder struct{}

func (brokenFinder) FindDuplicate(context.Context, string, string) (string, error) {
	return "", errors.New("db down")
}

func TestPipeline_DuplicateLookupFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.pipeline.WithDuplicates(brokenFinder{}, dedup.PolicyReject)

	res, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
}

func TestPipeline_PublishFailureKeepsLead(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("outbox unavailable")

	res, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)

	_, err = f.repo.GetByID(context.Background(), res.LeadID)
	assert.NoError(t, err)
}

func TestPipeline_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.pipeline.WithMetrics(metrics.NewLeadMetrics(reg))

	_, err := f.pipeline.Submit(context.Background(), "", leads.OriginForm, scenarioA())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, fam := range families {
		if fam.GetName() == "medici_leads_submissions_total" {
			found = true
			require.Len(t, fam.GetMetric(), 1)
			assert.Equal(t, float64(1), fam.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPipeline_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Subscribe(ctx, "", leads.SubscribeRequest{Email: "Reader@Biz.com"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.NotEmpty(t, res.SubscriberID)

	again, err := f.pipeline.Subscribe(ctx, "", leads.SubscribeRequest{Email: "reader@biz.com"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, again.Outcome)
	assert.Equal(t, []string{MsgAlreadySubscribed}, again.Errors)

	bad, err := f.pipeline.Subscribe(ctx, "", leads.SubscribeRequest{Email: "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgEmailInvalid}, bad.Errors)

	assert.Equal(t, []events.Type{events.TypeNewsletterSubscribe}, f.pub.types())
}

func TestPipeline_LeadStatusChanged(t *testing.T) {
	f := newFixture(t)
	lead := &leads.Lead{ID: "lead-1", Status: leads.StatusContacted}

	f.pipeline.LeadStatusChanged(context.Background(), lead, leads.StatusNew)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, events.TypeLeadStatusChanged, ev.Type)
	assert.Equal(t, leads.StatusNew, ev.OldStatus)
	assert.Equal(t, leads.StatusContacted, ev.NewStatus)
}

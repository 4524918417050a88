// Package intake turns inbound submissions into stored, scored leads and
// announces them to the rest of the system.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medici-leads/internal/dedup"
	"github.com/wolfman30/medici-leads/internal/events"
	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

var pipelineTracer = otel.Tracer("medici.internal.intake")

// Outcome classifies a submission.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeThrottled Outcome = "throttled"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is returned for every submission the pipeline could evaluate.
type Result struct {
	Outcome      Outcome  `json:"outcome"`
	LeadID       string   `json:"lead_id,omitempty"`
	SubscriberID string   `json:"subscriber_id,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	QualityScore int      `json:"quality_score,omitempty"`
	Score        int      `json:"score,omitempty"`
	ScoreLabel   string   `json:"score_label,omitempty"`
	DuplicateOf  string   `json:"duplicate_of,omitempty"`
}

// Allower throttles clients.
type Allower interface {
	Allow(ctx context.Context, clientKey string) bool
}

// DuplicateFinder looks up a recent lead with the same contact details.
type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, email, phone string) (string, error)
}

// maxFieldLengths bounds raw field sizes in characters.
var maxFieldLengths = []struct {
	Field string
	Max   int
	value func(leads.Submission) string
}{
	{"name", 100, func(s leads.Submission) string { return s.Name }},
	{"email", 254, func(s leads.Submission) string { return s.Email }},
	{"phone", 20, func(s leads.Submission) string { return s.Phone }},
	{"service", 100, func(s leads.Submission) string { return s.Service }},
	{"message", 2000, func(s leads.Submission) string { return s.Message }},
}

// CheckLengths reports every field longer than its bound.
func CheckLengths(s leads.Submission) []string {
	var out []string
	for _, f := range maxFieldLengths {
		if utf8.RuneCountInString(f.value(s)) > f.Max {
			out = append(out, fmt.Sprintf("Field %q is too long (max %d characters)", f.Field, f.Max))
		}
	}
	return out
}

const (
	MsgThrottled         = "Too many requests. Please try again later."
	MsgDuplicate         = "A request with these contact details was already received"
	MsgEmailInvalid      = "Please provide a valid email"
	MsgAlreadySubscribed = "This email is already subscribed"
)

// Pipeline runs throttle, validate, dedupe, score, store and publish.
type Pipeline struct {
	leads       leads.Repository
	subscribers leads.SubscriberRepository
	scorer      *scoring.Scorer
	publisher   events.Publisher
	limiter     Allower
	duplicates  DuplicateFinder
	policy      dedup.Policy
	metrics     *metrics.LeadMetrics
	logger      *logging.Logger
}

func NewPipeline(repo leads.Repository, scorer *scoring.Scorer, publisher events.Publisher, logger *logging.Logger) *Pipeline {
	if repo == nil {
		panic("intake: lead repository required")
	}
	if publisher == nil {
		panic("intake: publisher required")
	}
	if scorer == nil {
		scorer = scoring.NewScorer(true, 0, nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		leads:     repo,
		scorer:    scorer,
		publisher: publisher,
		policy:    dedup.PolicyAllow,
		logger:    logger.Component("intake"),
	}
}

func (p *Pipeline) WithSubscribers(repo leads.SubscriberRepository) *Pipeline {
	p.subscribers = repo
	return p
}

func (p *Pipeline) WithLimiter(l Allower) *Pipeline {
	p.limiter = l
	return p
}

// WithDuplicates enables duplicate detection under policy.
func (p *Pipeline) WithDuplicates(f DuplicateFinder, policy dedup.Policy) *Pipeline {
	p.duplicates = f
	p.policy = policy
	return p
}

func (p *Pipeline) WithMetrics(m *metrics.LeadMetrics) *Pipeline {
	p.metrics = m
	return p
}

// Submit evaluates a lead submission. The error is non-nil only when the
// lead could not be stored; every other outcome is carried in Result.
func (p *Pipeline) Submit(ctx context.Context, clientKey, origin string, raw leads.Submission) (Result, error) {
	start := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "intake.submit")
	defer span.End()
	span.SetAttributes(attribute.String("lead.origin", origin))

	res, err := p.submit(ctx, clientKey, origin, raw)

	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("lead.outcome", outcome))
	p.metrics.ObserveSubmission(origin, outcome, time.Since(start).Seconds())
	return res, err
}

func (p *Pipeline) submit(ctx context.Context, clientKey, origin string, raw leads.Submission) (Result, error) {
	if throttledOrigin(origin) && !p.allow(ctx, clientKey) {
		return Result{Outcome: OutcomeThrottled, Errors: []string{MsgThrottled}}, nil
	}
	if tooLong := CheckLengths(raw); len(tooLong) > 0 {
		return Result{Outcome: OutcomeRejected, Errors: tooLong}, nil
	}

	v := leads.Validate(raw)
	if !v.Valid {
		p.logger.Info("submission rejected", "origin", origin, "errors", v.Errors, "quality_score", v.QualityScore)
		return Result{
			Outcome:      OutcomeRejected,
			Errors:       v.Errors,
			Warnings:     v.Warnings,
			QualityScore: v.QualityScore,
		}, nil
	}

	warnings := append([]string(nil), v.Warnings...)
	duplicateOf := p.findDuplicate(ctx, v.Data.Email, v.Data.Phone)
	if duplicateOf != "" {
		switch p.policy {
		case dedup.PolicyReject:
			p.logger.Info("duplicate submission rejected", "duplicate_of", duplicateOf, "email", logging.MaskEmail(v.Data.Email))
			return Result{
				Outcome:      OutcomeDuplicate,
				Errors:       []string{MsgDuplicate},
				QualityScore: v.QualityScore,
				DuplicateOf:  duplicateOf,
			}, nil
		case dedup.PolicyWarn:
			warnings = append(warnings, fmt.Sprintf("Possible duplicate of lead %s", duplicateOf))
		}
	}

	req := leads.NewCreateRequest(v.Data, v.QualityScore, warnings)
	req.Origin = origin
	req.DuplicateOf = duplicateOf
	b := p.scorer.Score(&leads.Lead{
		Phone:      req.Phone,
		Service:    req.Service,
		Message:    req.Message,
		UTM:        req.UTM,
		Engagement: req.Engagement,
	})
	req.Score = b.Total
	req.ScoreLabel = string(b.Label)

	lead, err := p.leads.Create(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("intake: store lead: %w", err)
	}
	p.metrics.ObserveScores(lead.QualityScore, lead.Score, lead.ScoreLabel)
	p.logger.Info("lead accepted",
		"lead_id", lead.ID,
		"origin", lead.Origin,
		"score", lead.Score,
		"label", lead.ScoreLabel,
		"quality_score", lead.QualityScore,
		"warnings", len(lead.Warnings),
	)

	if err := p.publisher.Publish(ctx, events.NewLeadCreated(lead)); err != nil {
		// The lead is stored; delivery can be replayed from the admin side.
		p.logger.Error("failed to publish new lead event", "lead_id", lead.ID, "error", err)
	}

	return Result{
		Outcome:      OutcomeAccepted,
		LeadID:       lead.ID,
		Warnings:     lead.Warnings,
		QualityScore: lead.QualityScore,
		Score:        lead.Score,
		ScoreLabel:   lead.ScoreLabel,
		DuplicateOf:  duplicateOf,
	}, nil
}

// Subscribe stores a newsletter subscription.
func (p *Pipeline) Subscribe(ctx context.Context, clientKey string, req leads.SubscribeRequest) (Result, error) {
	ctx, span := pipelineTracer.Start(ctx, "intake.subscribe")
	defer span.End()

	if p.subscribers == nil {
		return Result{}, errors.New("intake: newsletter storage not configured")
	}
	if !p.allow(ctx, clientKey) {
		return Result{Outcome: OutcomeThrottled, Errors: []string{MsgThrottled}}, nil
	}
	if utf8.RuneCountInString(req.Email) > 254 {
		return Result{Outcome: OutcomeRejected, Errors: []string{MsgEmailInvalid}}, nil
	}

	sub, err := p.subscribers.Subscribe(ctx, req)
	switch {
	case errors.Is(err, leads.ErrInvalidEmail):
		return Result{Outcome: OutcomeRejected, Errors: []string{MsgEmailInvalid}}, nil
	case errors.Is(err, leads.ErrAlreadySubscribed):
		return Result{Outcome: OutcomeRejected, Errors: []string{MsgAlreadySubscribed}}, nil
	case err != nil:
		span.RecordError(err)
		return Result{}, fmt.Errorf("intake: store subscriber: %w", err)
	}

	p.logger.Info("newsletter subscription stored", "subscriber_id", sub.ID, "source", sub.Source)
	if err := p.publisher.Publish(ctx, events.NewsletterSubscribed(sub)); err != nil {
		p.logger.Error("failed to publish subscription event", "subscriber_id", sub.ID, "error", err)
	}
	return Result{Outcome: OutcomeAccepted, SubscriberID: sub.ID}, nil
}

// LeadStatusChanged publishes admin status transitions.
func (p *Pipeline) LeadStatusChanged(ctx context.Context, lead *leads.Lead, oldStatus leads.Status) {
	if err := p.publisher.Publish(ctx, events.LeadStatusChanged(lead, oldStatus)); err != nil {
		p.logger.Error("failed to publish status change", "lead_id", lead.ID, "error", err)
	}
}

// throttledOrigin reports whether submissions from origin go through the
// per-client limiter. Zapier is authenticated by shared secret and arrives
// from a small pool of egress addresses.
func throttledOrigin(origin string) bool {
	return origin != leads.OriginZapier
}

func (p *Pipeline) allow(ctx context.Context, clientKey string) bool {
	if p.limiter == nil {
		return true
	}
	return p.limiter.Allow(ctx, clientKey)
}

// findDuplicate fails open: a lookup error never blocks a lead.
func (p *Pipeline) findDuplicate(ctx context.Context, email, phone string) string {
	if p.duplicates == nil {
		return ""
	}
	id, err := p.duplicates.FindDuplicate(ctx, email, phone)
	if err != nil {
		p.logger.Warn("duplicate lookup failed", "error", err)
		return ""
	}
	return id
}

package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medici-leads/internal/egress"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

var senderTracer = otel.Tracer("medici.internal.webhooks.sender")

const (
	UserAgent             = "Medici-Webhook/1.0"
	DefaultAttemptTimeout = 30 * time.Second
)

// Result summarizes one delivery.
type Result struct {
	Success  bool
	Attempts int
	Skipped  bool
	Err      error
}

// Sender posts payloads to destinations with bounded retries.
type Sender struct {
	client  *http.Client
	policy  RetryPolicy
	timeout time.Duration
	log     AttemptLog
	metrics *metrics.DeliveryMetrics
	logger  *logging.Logger
}

func NewSender(log AttemptLog, logger *logging.Logger) *Sender {
	if log == nil {
		log = NewMemoryAttemptLog(DefaultLogSize)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{
		client:  &http.Client{},
		policy:  DefaultRetryPolicy(),
		timeout: DefaultAttemptTimeout,
		log:     log,
		logger:  logger,
	}
}

func (s *Sender) WithHTTPClient(c *http.Client) *Sender {
	if c != nil {
		s.client = c
	}
	return s
}

func (s *Sender) WithRetryPolicy(p RetryPolicy) *Sender {
	s.policy = p
	return s
}

func (s *Sender) WithAttemptTimeout(d time.Duration) *Sender {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *Sender) WithMetrics(m *metrics.DeliveryMetrics) *Sender {
	s.metrics = m
	return s
}

// Log exposes the attempt log.
func (s *Sender) Log() AttemptLog { return s.log }

// Send delivers payload and reports success.
func (s *Sender) Send(ctx context.Context, dest Destination, payload Payload) bool {
	return s.Deliver(ctx, dest, payload).Success
}

// Deliver posts payload to dest, retrying per the policy. Untrusted
// destinations outside the allow-list are skipped without any attempt.
func (s *Sender) Deliver(ctx context.Context, dest Destination, payload Payload) Result {
	ctx, span := senderTracer.Start(ctx, "webhooks.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.id", dest.ID),
		attribute.String("webhook.event", string(payload.Event)),
	)
	started := time.Now()

	if !dest.Trusted && !egress.IsAllowed(dest.URL) {
		s.logger.Warn("webhook destination blocked by allow-list", "webhook_id", dest.ID, "url", dest.URL)
		span.SetAttributes(attribute.Bool("webhook.skipped", true))
		s.metrics.ObserveDelivery(string(payload.Event), "skipped", 0, 0)
		return Result{Skipped: true, Err: egress.ErrNotAllowed}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return Result{Err: fmt.Errorf("webhooks: marshal payload: %w", err)}
	}

	var res Result
	for attempt := 1; attempt <= s.policy.attempts(); attempt++ {
		if err := wait(ctx, s.policy.Delay(attempt)); err != nil {
			res.Err = err
			break
		}
		res.Attempts = attempt

		status, err := s.post(ctx, dest, body)
		success := err == nil && status >= 200 && status < 300

		entry := Attempt{
			Timestamp:  time.Now().UTC(),
			WebhookID:  dest.ID,
			WebhookURL: dest.URL,
			Event:      payload.Event,
			Attempt:    attempt,
			Success:    success,
			StatusCode: status,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if logErr := s.log.Append(ctx, entry); logErr != nil {
			s.logger.Warn("failed to record webhook attempt", "error", logErr, "webhook_id", dest.ID)
		}

		if success {
			res.Success = true
			res.Err = nil
			break
		}
		if err != nil {
			res.Err = err
		} else {
			res.Err = fmt.Errorf("webhooks: unexpected status %d", status)
		}
		s.logger.Warn("webhook attempt failed",
			"webhook_id", dest.ID,
			"event", payload.Event,
			"attempt", attempt,
			"status_code", status,
			"error", res.Err,
		)
	}

	result := "failed"
	if res.Success {
		result = "delivered"
	} else {
		span.SetStatus(codes.Error, "delivery failed")
	}
	span.SetAttributes(attribute.Int("webhook.attempts", res.Attempts))
	s.metrics.ObserveDelivery(string(payload.Event), result, res.Attempts, time.Since(started).Seconds())
	return res
}

func (s *Sender) post(ctx context.Context, dest Destination, body []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, dest.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhooks: build request: %w", err)
	}
	dest.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

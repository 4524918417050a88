package intake

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Inbound event types accepted by the public endpoint.
const (
	EventConsultationRequest = "consultation_request"
	EventNewsletterSubscribe = "newsletter_subscribe"
)

const maxBodyBytes = 64 << 10

// Envelope is the public submission body.
type Envelope struct {
	EventType string          `json:"event_type"`
	Token     string          `json:"token,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Response is written for every public submission.
type Response struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Outcome  Outcome  `json:"outcome,omitempty"`
	ID       string   `json:"id,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var successMessages = map[string]string{
	EventConsultationRequest: "Thank you! We will contact you shortly.",
	EventNewsletterSubscribe: "Thanks for subscribing! Please check your inbox.",
}

// Handler serves the public form endpoint.
type Handler struct {
	pipeline *Pipeline
	tokens   *FormTokens
	guard    *PublicGuard
	logger   *logging.Logger
}

// NewHandler wires the public endpoint. tokens may be nil, in which case
// every request goes through guard.
func NewHandler(p *Pipeline, tokens *FormTokens, guard *PublicGuard, logger *logging.Logger) *Handler {
	if guard == nil {
		guard = NewPublicGuard("")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{pipeline: p, tokens: tokens, guard: guard, logger: logger}
}

// ServeHTTP handles POST /api/events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || len(env.Payload) == 0 {
		status := http.StatusBadRequest
		if isMaxBytes(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, Response{Message: "Invalid event data"})
		return
	}
	env.EventType = strings.ToLower(strings.TrimSpace(env.EventType))

	var sub leads.Submission
	if err := json.Unmarshal(env.Payload, &sub); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Invalid event data"})
		return
	}

	token := r.Header.Get("X-Form-Token")
	if token == "" {
		token = env.Token
	}
	if err := h.tokens.Verify(token); err != nil {
		if gerr := h.guard.Check(r, sub); gerr != nil {
			h.logger.Info("public form blocked", "reason", gerr.Error(), "event_type", env.EventType)
			writeJSON(w, http.StatusBadRequest, Response{Message: "Validation error"})
			return
		}
	}

	clientKey := ratelimit.ClientKey(r)
	var (
		res Result
		err error
	)
	switch env.EventType {
	case EventConsultationRequest:
		res, err = h.pipeline.Submit(r.Context(), clientKey, leads.OriginForm, sub)
	case EventNewsletterSubscribe:
		var req leads.SubscribeRequest
		if uerr := json.Unmarshal(env.Payload, &req); uerr != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "Invalid event data"})
			return
		}
		res, err = h.pipeline.Subscribe(r.Context(), clientKey, req)
	default:
		writeJSON(w, http.StatusBadRequest, Response{Message: "Unknown event type"})
		return
	}
	if err != nil {
		h.logger.Error("submission failed", "event_type", env.EventType, "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "Internal error. Please try again later."})
		return
	}
	writeResult(w, res, successMessages[env.EventType])
}

// StatusFor maps an outcome to its HTTP status.
func StatusFor(o Outcome) int {
	switch o {
	case OutcomeAccepted:
		return http.StatusOK
	case OutcomeThrottled:
		return http.StatusTooManyRequests
	case OutcomeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeResult(w http.ResponseWriter, res Result, success string) {
	resp := Response{
		Success:  res.Outcome == OutcomeAccepted,
		Outcome:  res.Outcome,
		Errors:   res.Errors,
		Warnings: res.Warnings,
		ID:       res.LeadID,
	}
	if resp.ID == "" {
		resp.ID = res.SubscriberID
	}
	switch {
	case resp.Success:
		resp.Message = success
	case len(res.Errors) > 0:
		resp.Message = res.Errors[0]
	}
	writeJSON(w, StatusFor(res.Outcome), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// isMaxBytes reports whether err came from http.MaxBytesReader.
func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

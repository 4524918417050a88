package intake

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const zapierRoute = "/api/zapier/leads"

// ZapierLead is the body an automation platform posts.
type ZapierLead struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Service     string `json:"service"`
	Message     string `json:"message"`
	Source      string `json:"source"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

// Submission converts the body into a form submission. Automation
// sources carry their own consent, and a missing name falls back to the
// email's local part.
func (z ZapierLead) Submission() leads.Submission {
	source := firstNonEmpty(z.UTMSource, z.Source, "zapier")
	name := strings.TrimSpace(z.Name)
	if name == "" {
		if at := strings.Index(z.Email, "@"); at > 0 {
			name = z.Email[:at]
		}
	}
	return leads.Submission{
		Name:        name,
		Email:       z.Email,
		Phone:       z.Phone,
		Service:     z.Service,
		Message:     z.Message,
		UTMSource:   source,
		UTMMedium:   firstNonEmpty(z.UTMMedium, "webhook"),
		UTMCampaign: z.UTMCampaign,
		Consent:     true,
	}
}

// ZapierHandler accepts leads from automation platforms authenticated by a
// shared secret.
type ZapierHandler struct {
	pipeline *Pipeline
	secret   string
	log      RequestLog
	siteURL  string
	siteName string
	logger   *logging.Logger
	now      func() time.Time
}

func NewZapierHandler(p *Pipeline, secret string, log RequestLog, logger *logging.Logger) *ZapierHandler {
	if log == nil {
		log = NewMemoryRequestLog(DefaultRequestLogSize)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ZapierHandler{pipeline: p, secret: secret, log: log, logger: logger, now: time.Now}
}

func (h *ZapierHandler) WithSite(url, name string) *ZapierHandler {
	h.siteURL = strings.TrimRight(url, "/")
	h.siteName = name
	return h
}

// authorize checks the X-Zapier-Secret header or ?secret= in constant
// time and logs refusals.
func (h *ZapierHandler) authorize(w http.ResponseWriter, r *http.Request, email string) bool {
	fail := func(status int, msg string) bool {
		h.record(r, false, msg, email)
		writeJSON(w, status, map[string]any{"success": false, "message": msg})
		return false
	}
	if h.secret == "" {
		return fail(http.StatusServiceUnavailable, "Zapier integration is not configured")
	}
	provided := r.Header.Get("X-Zapier-Secret")
	if provided == "" {
		provided = r.URL.Query().Get("secret")
	}
	if provided == "" {
		return fail(http.StatusUnauthorized, "Secret not provided. Use the X-Zapier-Secret header or ?secret= parameter.")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		return fail(http.StatusForbidden, "Invalid secret")
	}
	return true
}

// CreateLead handles POST /api/zapier/leads.
func (h *ZapierHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body ZapierLead
	decodeErr := json.NewDecoder(r.Body).Decode(&body)

	if !h.authorize(w, r, body.Email) {
		return
	}
	if decodeErr != nil {
		h.record(r, false, "Invalid JSON body", "")
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON body"})
		return
	}

	res, err := h.pipeline.Submit(r.Context(), ratelimit.ClientKey(r), leads.OriginZapier, body.Submission())
	if err != nil {
		h.logger.Error("zapier lead failed", "error", err)
		h.record(r, false, "Failed to create lead", body.Email)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to create lead"})
		return
	}
	if res.Outcome != OutcomeAccepted {
		msg := string(res.Outcome)
		if len(res.Errors) > 0 {
			msg = res.Errors[0]
		}
		h.record(r, false, msg, body.Email)
		writeJSON(w, StatusFor(res.Outcome), map[string]any{"success": false, "message": msg, "errors": res.Errors})
		return
	}

	h.record(r, true, "Lead "+res.LeadID+" created", body.Email)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"lead_id":  res.LeadID,
		"score":    res.Score,
		"label":    res.ScoreLabel,
		"warnings": res.Warnings,
		"message":  "Lead " + res.LeadID + " created",
	})
}

// Ping handles GET /api/zapier/status, the connection test automation
// platforms run with the secret.
func (h *ZapierHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "") {
		return
	}
	h.record(r, true, "Status check", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"enabled":   true,
		"site_name": h.siteName,
		"site_url":  h.siteURL,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// AdminStatus handles GET /admin/zapier/status.
func (h *ZapierHandler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.log.List(r.Context())
	if err != nil {
		h.logger.Error("failed to read zapier log", "error", err)
		entries = []RequestLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": h.secret != "",
		"endpoint":   h.siteURL + zapierRoute,
		"log":        entries,
	})
}

// ClearLog handles DELETE /admin/zapier/log.
func (h *ZapierHandler) ClearLog(w http.ResponseWriter, r *http.Request) {
	if err := h.log.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear zapier log", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ZapierHandler) record(r *http.Request, success bool, msg, email string) {
	entry := RequestLogEntry{
		Timestamp: h.now().UTC(),
		Success:   success,
		Message:   msg,
		Method:    r.Method,
		Route:     r.URL.Path,
		IP:        ratelimit.ClientKey(r),
		Email:     logging.MaskEmail(email),
	}
	if err := h.log.Append(r.Context(), entry); err != nil {
		h.logger.Warn("failed to append zapier log", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

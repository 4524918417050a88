package webhooks

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Handler serves the admin webhook endpoints.
type Handler struct {
	store      DestinationStore
	dispatcher *Dispatcher
	log        AttemptLog
	jobs       JobStore
	logger     *logging.Logger
	siteURL    string
	siteName   string
}

func NewHandler(store DestinationStore, dispatcher *Dispatcher, log AttemptLog, jobs JobStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		jobs:       jobs,
		logger:     logger,
	}
}

// WithSite sets the site identity reported in test payloads.
func (h *Handler) WithSite(url, name string) *Handler {
	h.siteURL = url
	h.siteName = name
	return h
}

// Routes mounts the handler under a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/logs", h.ListLogs)
	r.Delete("/logs", h.ClearLogs)
	r.Get("/jobs/{jobID}", h.GetJob)
	r.Get("/{webhookID}", h.Get)
	r.Put("/{webhookID}", h.Update)
	r.Delete("/{webhookID}", h.Delete)
	r.Post("/{webhookID}/test", h.Test)
}

// List handles GET /admin/webhooks
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list webhooks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	out := make([]Destination, 0, len(items))
	for _, d := range items {
		out = append(out, d.Redacted())
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": out})
}

// Get handles GET /admin/webhooks/{webhookID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.Get(r.Context(), chi.URLParam(r, "webhookID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Redacted())
}

// Create handles POST /admin/webhooks. Destinations created through the API
// are never trusted.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var d Destination
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d.ID = ""
	d.Trusted = false
	created, err := h.store.Create(r.Context(), d)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Info("webhook destination created", "webhook_id", created.ID, "url", created.URL)
	writeJSON(w, http.StatusCreated, created.Redacted())
}

// Update handles PUT /admin/webhooks/{webhookID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var d Destination
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := h.store.Update(r.Context(), chi.URLParam(r, "webhookID"), d)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Redacted())
}

// Delete handles DELETE /admin/webhooks/{webhookID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "webhookID")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /admin/webhooks/{webhookID}/test
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		writeError(w, http.StatusNotImplemented, "webhook delivery is not configured")
		return
	}
	data := map[string]any{
		"test_id":   uuid.NewString(),
		"site_url":  h.siteURL,
		"site_name": h.siteName,
	}
	res, err := h.dispatcher.SendTest(r.Context(), chi.URLParam(r, "webhookID"), data)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	resp := map[string]any{
		"success":  res.Success,
		"attempts": res.Attempts,
		"skipped":  res.Skipped,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListLogs handles GET /admin/webhooks/logs
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeJSON(w, http.StatusOK, map[string]any{"logs": []Attempt{}})
		return
	}
	entries, err := h.log.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list webhook logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// ClearLogs handles DELETE /admin/webhooks/logs
func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if h.log != nil {
		if err := h.log.Clear(r.Context()); err != nil {
			h.logger.Error("failed to clear webhook logs", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to clear logs")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetJob handles GET /admin/webhooks/jobs/{jobID}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotFound, "job tracking is disabled")
		return
	}
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to fetch webhook job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDestinationNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.Is(err, ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("webhook store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

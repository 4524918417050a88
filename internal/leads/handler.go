package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// StatusListener is told about every successful status transition.
type StatusListener interface {
	LeadStatusChanged(ctx context.Context, lead *Lead, oldStatus Status)
}

// Rescorer recomputes the marketing score of a stored lead.
type Rescorer interface {
	Rescore(ctx context.Context, id string) (*Lead, error)
}

// Handler serves the admin lead endpoints.
type Handler struct {
	repo     Repository
	logger   *logging.Logger
	listener StatusListener
	rescorer Rescorer
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// WithStatusListener registers the listener notified on status changes.
func (h *Handler) WithStatusListener(l StatusListener) *Handler {
	h.listener = l
	return h
}

// WithRescorer enables the rescore endpoint.
func (h *Handler) WithRescorer(r Rescorer) *Handler {
	h.rescorer = r
	return h
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /admin/leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := ListLeadsFilter{Limit: 50}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = parsed
	}
	filter.ScoreLabel = r.URL.Query().Get("label")

	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /admin/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeRepoError(w, err, "failed to load lead")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /admin/leads/{leadID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "leadID")
	old, err := h.repo.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.writeRepoError(w, err, "failed to update status")
		return
	}
	lead, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err, "failed to load lead")
		return
	}

	h.logger.Info("lead status updated", "lead_id", id, "old_status", old, "new_status", status)
	if h.listener != nil && old != status {
		h.listener.LeadStatusChanged(r.Context(), lead, old)
	}
	writeJSON(w, http.StatusOK, lead)
}

// Rescore handles POST /admin/leads/{leadID}/rescore
func (h *Handler) Rescore(w http.ResponseWriter, r *http.Request) {
	if h.rescorer == nil {
		http.Error(w, "scoring disabled", http.StatusNotImplemented)
		return
	}
	lead, err := h.rescorer.Rescore(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.writeRepoError(w, err, "failed to rescore lead")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrLeadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Handler serves GET /admin/audit.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		EventType: q.Get("type"),
		SubjectID: q.Get("subject"),
		Tag:       q.Get("tag"),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		filter.Since = v
	}

	events, err := h.svc.Query(r.Context(), filter)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to query audit events"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
}

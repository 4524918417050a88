package scoring

import (
	"encoding/json"
	"net/http"
)

// ConfigHandler serves GET /admin/scoring/config.
func ConfigHandler(s *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Config())
	}
}

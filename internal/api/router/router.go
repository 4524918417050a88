package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medici-leads/internal/audit"
	httpmiddleware "github.com/wolfman30/medici-leads/internal/http/middleware"
	"github.com/wolfman30/medici-leads/internal/intake"
	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/notify"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/internal/webhooks"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	// Public surface
	Intake           *intake.Handler
	FormTokens       *intake.FormTokens
	FormTokenLimiter httpmiddleware.Allower
	Zapier           *intake.ZapierHandler

	// Admin surface
	LeadsHandler    *leads.Handler
	Webhooks        *webhooks.Handler
	Notifications   *notify.Manager
	Scorer          *scoring.Scorer
	Audit           *audit.Handler
	LiveFeed        http.Handler
	EventObservers  func() []string
	MetricsHandler  http.Handler
	AdminAuthSecret string

	CORSAllowedOrigins []string
}

// New creates a new HTTP router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	r := chi.NewRouter()

	// No RealIP: ratelimit.ClientKey resolves client addresses from the raw request.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Intake != nil {
			public.Post("/api/events", cfg.Intake.ServeHTTP)
		}
		if cfg.FormTokens != nil {
			tokens := http.Handler(cfg.FormTokens)
			if cfg.FormTokenLimiter != nil {
				tokens = httpmiddleware.RateLimit(cfg.FormTokenLimiter, time.Minute)(tokens)
			}
			public.Method(http.MethodGet, "/api/form-token", tokens)
		}
		if cfg.Zapier != nil {
			public.Post("/api/zapier/leads", cfg.Zapier.CreateLead)
			public.Get("/api/zapier/status", cfg.Zapier.Ping)
		}
	})

	if cfg.AdminAuthSecret == "" {
		cfg.Logger.Warn("admin API disabled: ADMIN_JWT_SECRET not set")
		return r
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.LeadsHandler != nil {
			admin.Get("/leads", cfg.LeadsHandler.ListLeads)
			admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
			admin.Put("/leads/{leadID}/status", cfg.LeadsHandler.UpdateStatus)
			admin.Post("/leads/{leadID}/rescore", cfg.LeadsHandler.Rescore)
		}
		if cfg.Webhooks != nil {
			admin.Route("/webhooks", cfg.Webhooks.Routes)
		}
		if cfg.Notifications != nil {
			admin.Get("/notifications/status", cfg.Notifications.StatusHandler)
		}
		if cfg.Scorer != nil {
			admin.Get("/scoring/config", scoring.ConfigHandler(cfg.Scorer))
		}
		if cfg.Audit != nil {
			admin.Method(http.MethodGet, "/audit", cfg.Audit)
		}
		if cfg.EventObservers != nil {
			admin.Get("/events/observers", observersHandler(cfg.EventObservers))
		}
		if cfg.Zapier != nil {
			admin.Get("/zapier/status", cfg.Zapier.AdminStatus)
			admin.Delete("/zapier/log", cfg.Zapier.ClearLog)
		}
		if cfg.LiveFeed != nil {
			admin.Method(http.MethodGet, "/live", cfg.LiveFeed)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func observersHandler(list func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"observers": list()})
	}
}

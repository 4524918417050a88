package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medici-leads/internal/api/router"
	"github.com/wolfman30/medici-leads/internal/archive"
	"github.com/wolfman30/medici-leads/internal/audit"
	appconfig "github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/internal/crm"
	"github.com/wolfman30/medici-leads/internal/dedup"
	"github.com/wolfman30/medici-leads/internal/events"
	"github.com/wolfman30/medici-leads/internal/intake"
	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/livefeed"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/internal/webhooks"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const (
	zapierLogKey       = "medici:zapier:requests"
	formTokenRatePerIP = 30
)

// App is the fully wired API process.
type App struct {
	Handler    http.Handler
	Pipeline   *intake.Pipeline
	Dispatcher *events.Dispatcher
	Delivery   *Delivery
	// Deliverer is set when events go through the Postgres outbox.
	Deliverer *events.Deliverer
	Hub       *livefeed.Hub
}

// Build wires the lead pipeline, its observers and the HTTP surface.
func Build(ctx context.Context, cfg *appconfig.Config, infra Infra, sqlDB *sql.DB, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	leadMetrics := metrics.NewLeadMetrics(registry)
	deliveryMetrics := metrics.NewDeliveryMetrics(registry)

	var (
		repo leads.Repository
		subs leads.SubscriberRepository
	)
	if infra.Pool != nil {
		repo = leads.NewPostgresRepository(infra.Pool)
		subs = leads.NewPostgresSubscriberRepository(infra.Pool)
	} else {
		logger.Warn("DATABASE_URL not set; leads are kept in memory")
		repo = leads.NewInMemoryRepository()
		subs = leads.NewInMemorySubscriberRepository()
	}

	delivery, err := BuildDelivery(ctx, cfg, infra, deliveryMetrics, logger)
	if err != nil {
		return nil, err
	}

	scorer := scoring.NewScorer(cfg.ScoringEnabled, cfg.CRMSyncThreshold, repo)
	var sink crm.Sink = crm.NoopSink{}
	if cfg.CRMWebhookURL != "" {
		sink = crm.NewWebhookSink(delivery.Sender, cfg.CRMWebhookURL)
	}
	gate := crm.NewGate(scorer, sink, repo, logger)
	notifier := BuildNotifier(ctx, cfg, infra, deliveryMetrics, logger)

	dispatcher := events.NewDispatcher(logger)
	dispatcher.Register(
		events.NewCRMObserver(gate, logger),
		events.NewNotifyObserver(notifier),
		events.NewWebhookObserver(delivery.Dispatcher),
	)

	var auditHandler *audit.Handler
	if sqlDB != nil {
		auditSvc := audit.NewService(sqlDB)
		dispatcher.Register(events.NewAuditObserver(auditSvc))
		auditHandler = audit.NewHandler(auditSvc, logger)
	}
	if cfg.ArchiveBucket != "" && infra.AWS != nil {
		store := archive.NewStore(s3.NewFromConfig(*infra.AWS), cfg.ArchiveBucket, logger)
		dispatcher.Register(events.NewArchiveObserver(store))
	}

	var hub *livefeed.Hub
	if cfg.LiveFeedEnabled {
		hub = livefeed.NewHub(logger, originChecker(cfg.CORSAllowedOrigins))
		dispatcher.Register(events.NewLiveFeedObserver(hub))
	}
	logger.Info("event observers registered", "observers", dispatcher.Observers())

	app := &App{Dispatcher: dispatcher, Delivery: delivery, Hub: hub}

	var publisher events.Publisher = dispatcher
	if infra.Pool != nil {
		outbox := events.NewOutboxStore(infra.Pool)
		publisher = outbox
		app.Deliverer = events.NewDeliverer(outbox, events.NewDispatchHandler(dispatcher), logger).
			WithInterval(cfg.OutboxPollInterval).
			WithBatchSize(int32(cfg.OutboxBatchSize))
	}

	limiter := ratelimit.NewLimiter(counterStore(infra, "medici:rate:"), cfg.RateLimitMax, cfg.RateLimitWindow, logger)
	pipeline := intake.NewPipeline(repo, scorer, publisher, logger).
		WithSubscribers(subs).
		WithLimiter(limiter).
		WithDuplicates(dedup.NewDetector(repo, cfg.DuplicateWindow), dedup.ParsePolicy(cfg.DuplicatePolicy)).
		WithMetrics(leadMetrics)
	app.Pipeline = pipeline

	var requestLog intake.RequestLog
	if infra.Redis != nil {
		requestLog = intake.NewRedisRequestLog(infra.Redis, zapierLogKey, cfg.ZapierLogSize)
	} else {
		requestLog = intake.NewMemoryRequestLog(cfg.ZapierLogSize)
	}

	tokens := intake.NewFormTokens(cfg.FormTokenSecret, cfg.FormTokenTTL)
	if tokens == nil {
		logger.Warn("FORM_TOKEN_SECRET not set; public form relies on heuristics only")
	}
	routerCfg := &router.Config{
		Logger:             logger,
		Intake:             intake.NewHandler(pipeline, tokens, intake.NewPublicGuard(cfg.SiteURL), logger),
		FormTokens:         tokens,
		FormTokenLimiter:   ratelimit.NewLimiter(counterStore(infra, "medici:formtoken:"), formTokenRatePerIP, time.Minute, logger),
		Zapier:             intake.NewZapierHandler(pipeline, cfg.ZapierSecret, requestLog, logger).WithSite(cfg.SiteURL, siteName),
		LeadsHandler:       leads.NewHandler(repo, logger).WithStatusListener(pipeline).WithRescorer(scorer),
		Webhooks:           webhooks.NewHandler(delivery.Destinations, delivery.Dispatcher, delivery.AttemptLog, delivery.Jobs, logger).WithSite(cfg.SiteURL, siteName),
		Notifications:      notifier,
		Scorer:             scorer,
		Audit:              auditHandler,
		EventObservers:     dispatcher.Observers,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if hub != nil {
		routerCfg.LiveFeed = hub
	}
	app.Handler = router.New(routerCfg)
	return app, nil
}

func counterStore(infra Infra, prefix string) ratelimit.CounterStore {
	if infra.Redis != nil {
		return ratelimit.NewRedisStore(infra.Redis, prefix)
	}
	return ratelimit.NewMemoryStore()
}

// originChecker accepts WebSocket upgrades from the CORS allow-list. With no
// list configured the gorilla same-origin default applies.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(strings.TrimRight(r.Header.Get("Origin"), "/"))
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medici-leads/internal/events"
	httpmiddleware "github.com/wolfman30/medici-leads/internal/http/middleware"
	"github.com/wolfman30/medici-leads/internal/intake"
	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/notify"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/internal/scoring"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const testSecret = "router-test-secret"

type testRouter struct {
	handler    http.Handler
	repo       *leads.InMemoryRepository
	dispatcher *events.Dispatcher
}

func newTestRouter(t *testing.T, mutate func(*Config)) *testRouter {
	t.Helper()

	logger := logging.New("error")
	repo := leads.NewInMemoryRepository()
	scorer := scoring.NewScorer(true, 40, repo)
	dispatcher := events.NewDispatcher(logger)
	pipeline := intake.NewPipeline(repo, scorer, dispatcher, logger).
		WithSubscribers(leads.NewInMemorySubscriberRepository())

	cfg := &Config{
		Logger:             logger,
		Intake:             intake.NewHandler(pipeline, nil, intake.NewPublicGuard(""), logger),
		FormTokens:         intake.NewFormTokens("form-secret", time.Hour),
		Zapier:             intake.NewZapierHandler(pipeline, "", intake.NewMemoryRequestLog(10), logger),
		LeadsHandler:       leads.NewHandler(repo, logger).WithRescorer(scorer),
		Notifications:      notify.NewManager(logger),
		Scorer:             scorer,
		EventObservers:     dispatcher.Observers,
		AdminAuthSecret:    testSecret,
		CORSAllowedOrigins: []string{"https://medici.test"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return &testRouter{handler: New(cfg), repo: repo, dispatcher: dispatcher}
}

func (tr *testRouter) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)
	return rr
}

func adminRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	token, err := httpmiddleware.IssueAdminToken(testSecret, "ops@medici.test", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRouterHealthEndpoint(t *testing.T) {
	tr := newTestRouter(t, nil)

	rr := tr.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterPublicSubmissionReachesAdminList(t *testing.T) {
	tr := newTestRouter(t, nil)

	body, err := json.Marshal(map[string]any{
		"event_type": intake.EventConsultationRequest,
		"payload": map[string]any{
			"name":       "Router Test",
			"email":      "router@biz.com",
			"phone":      "0991234567",
			"consent":    true,
			"utm_source": "google",
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	rr := tr.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tr.dispatcher.Wait()

	var submitted intake.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))
	assert.True(t, submitted.Success)
	require.NotEmpty(t, submitted.ID)

	rr = tr.do(t, adminRequest(t, http.MethodGet, "/admin/leads"))
	require.Equal(t, http.StatusOK, rr.Code)
	var list leads.ListLeadsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, submitted.ID, list.Leads[0].ID)

	rr = tr.do(t, adminRequest(t, http.MethodGet, "/admin/leads/"+submitted.ID))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	tr := newTestRouter(t, nil)

	rr := tr.do(t, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = tr.do(t, adminRequest(t, http.MethodGet, "/admin/scoring/config"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "threshold")

	rr = tr.do(t, adminRequest(t, http.MethodGet, "/admin/notifications/status"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = tr.do(t, adminRequest(t, http.MethodGet, "/admin/events/observers"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"observers":[]}`, rr.Body.String())
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	tr := newTestRouter(t, func(cfg *Config) { cfg.AdminAuthSecret = "" })

	rr := tr.do(t, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = tr.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterZapierNotConfigured(t *testing.T) {
	tr := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/zapier/leads", bytes.NewBufferString(`{"email":"z@biz.com"}`))
	req.Header.Set("X-Zapier-Secret", "anything")
	rr := tr.do(t, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	tr := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "https://medici.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := tr.do(t, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://medici.test", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = tr.do(t, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouterFormTokenRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, logging.New("error"))
	tr := newTestRouter(t, func(cfg *Config) { cfg.FormTokenLimiter = limiter })

	rr := tr.do(t, httptest.NewRequest(http.MethodGet, "/api/form-token", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "token")

	rr = tr.do(t, httptest.NewRequest(http.MethodGet, "/api/form-token", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestRouterRateLimitIgnoresRealIPHeader(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, logging.New("error"))
	tr := newTestRouter(t, func(cfg *Config) { cfg.FormTokenLimiter = limiter })

	first := httptest.NewRequest(http.MethodGet, "/api/form-token", nil)
	first.Header.Set("X-Real-IP", "198.51.100.1")
	require.Equal(t, http.StatusOK, tr.do(t, first).Code)

	second := httptest.NewRequest(http.MethodGet, "/api/form-token", nil)
	second.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, http.StatusTooManyRequests, tr.do(t, second).Code)
}

package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/ratelimit"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

func zapierRequest(body, secretHeader, query string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, zapierRoute+query, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if secretHeader != "" {
		req.Header.Set("X-Zapier-Secret", secretHeader)
	}
	return req
}

func TestZapierLead_SubmissionDefaults(t *testing.T) {
	s := ZapierLead{Email: "ana@biz.com"}.Submission()
	assert.Equal(t, "ana", s.Name)
	assert.Equal(t, "zapier", s.UTMSource)
	assert.Equal(t, "webhook", s.UTMMedium)
	assert.True(t, bool(s.Consent))

	s = ZapierLead{Email: "ana@biz.com", Source: "facebook", UTMMedium: "cpc"}.Submission()
	assert.Equal(t, "facebook", s.UTMSource)
	assert.Equal(t, "cpc", s.UTMMedium)
}

func TestZapierHandler_Auth(t *testing.T) {
	f := newFixture(t)
	log := NewMemoryRequestLog(10)
	h := NewZapierHandler(f.pipeline, "s3cret", log, logging.New("error"))

	body := `{"name":"Ana Kovalenko","email":"ana@biz.com"}`
	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "nope", "", http.StatusForbidden},
		{"header", "s3cret", "", http.StatusCreated},
		{"query", "", "?secret=s3cret", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CreateLead(rec, zapierRequest(body, tt.header, tt.query))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	entries, err := log.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.True(t, entries[0].Success, "newest first")
	assert.False(t, entries[3].Success)
	assert.Equal(t, "a***@biz.com", entries[3].Email)
}

func TestZapierHandler_NotConfigured(t *testing.T) {
	f := newFixture(t)
	h := NewZapierHandler(f.pipeline, "", nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.CreateLead(rec, zapierRequest(`{"email":"ana@biz.com"}`, "anything", ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestZapierHandler_CreatesScoredLead(t *testing.T) {
	f := newFixture(t)
	h := NewZapierHandler(f.pipeline, "s3cret", nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.CreateLead(rec, zapierRequest(`{"name":"Ana Kovalenko","email":"ana@biz.com","utm_campaign":"spring"}`, "s3cret", ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, _ := resp["lead_id"].(string)
	require.NotEmpty(t, id)

	lead, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, leads.OriginZapier, lead.Origin)
	assert.Equal(t, "zapier", lead.UTM.Source)
	assert.Equal(t, "webhook", lead.UTM.Medium)
	assert.Equal(t, "spring", lead.UTM.Campaign)
}

func TestZapierHandler_RejectsInvalidLead(t *testing.T) {
	f := newFixture(t)
	h := NewZapierHandler(f.pipeline, "s3cret", nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.CreateLead(rec, zapierRequest(`{"email":"broken"}`, "s3cret", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestZapierHandler_StatusEndpoints(t *testing.T) {
	f := newFixture(t)
	h := NewZapierHandler(f.pipeline, "s3cret", nil, logging.New("error")).WithSite("https://medici.test/", "Medici")
	h.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/zapier/status", nil)
	req.Header.Set("X-Zapier-Secret", "s3cret")
	h.Ping(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timestamp":"2026-05-01T09:00:00Z"`)

	rec = httptest.NewRecorder()
	h.AdminStatus(rec, httptest.NewRequest(http.MethodGet, "/admin/zapier/status", nil))
	var status struct {
		Configured bool              `json:"configured"`
		Endpoint   string            `json:"endpoint"`
		Log        []RequestLogEntry `json:"log"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Configured)
	assert.Equal(t, "https://medici.test/api/zapier/leads", status.Endpoint)
	require.Len(t, status.Log, 1)
	assert.Equal(t, "Status check", status.Log[0].Message)

	rec = httptest.NewRecorder()
	h.ClearLog(rec, httptest.NewRequest(http.MethodDelete, "/admin/zapier/log", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRedisRequestLog(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	log := NewRedisRequestLog(client, "", 2)
	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, log.Append(ctx, RequestLogEntry{Message: msg}))
	}

	entries, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Message)
	assert.Equal(t, "two", entries[1].Message)

	require.NoError(t, log.Clear(ctx))
	entries, err = log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryRequestLogBounded(t *testing.T) {
	log := NewMemoryRequestLog(2)
	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, log.Append(ctx, RequestLogEntry{Message: msg}))
	}
	entries, _ := log.List(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Message)
}

func TestZapierHandler_NotThrottledByPublicLimiter(t *testing.T) {
	f := newFixture(t)
	f.pipeline.WithLimiter(ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, logging.New("error")))
	h := NewZapierHandler(f.pipeline, "s3cret", nil, logging.New("error"))

	for i := 0; i < 6; i++ {
		body := fmt.Sprintf(`{"name":"Ana Kovalenko","email":"ana%d@biz.com"}`, i)
		rec := httptest.NewRecorder()
		h.CreateLead(rec, zapierRequest(body, "s3cret", ""))
		require.Equal(t, http.StatusCreated, rec.Code, "request %d: %s", i, rec.Body.String())
	}

	// The same client address is still limited on the public form.
	req := zapierRequest("{}", "", "")
	key := ratelimit.ClientKey(req)
	res, err := f.pipeline.Submit(context.Background(), key, leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	res, err = f.pipeline.Submit(context.Background(), key, leads.OriginForm, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, OutcomeThrottled, res.Outcome)
}

func TestZapierDefaultsPassUTMGovernance(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Submit(context.Background(), "", leads.OriginZapier, ZapierLead{Name: "Ana Kovalenko", Email: "ana@biz.com"}.Submission())
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, res.Outcome)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "utm_")
	}

	lead, err := f.repo.GetByID(context.Background(), res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "zapier", lead.UTM.Source)
	assert.Equal(t, "webhook", lead.UTM.Medium)
}

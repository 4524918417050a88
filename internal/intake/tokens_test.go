package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormTokens_IssueVerify(t *testing.T) {
	tokens := NewFormTokens("form-secret", time.Hour)
	token, expires, err := tokens.Issue()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)
	assert.NoError(t, tokens.Verify(token))

	other := NewFormTokens("other-secret", time.Hour)
	assert.ErrorIs(t, other.Verify(token), ErrTokenInvalid)
	assert.ErrorIs(t, tokens.Verify(""), ErrTokenInvalid)
	assert.ErrorIs(t, tokens.Verify("garbage"), ErrTokenInvalid)
}

func TestFormTokens_Expiry(t *testing.T) {
	tokens := NewFormTokens("form-secret", time.Minute)
	issued := time.Now()
	tokens.now = func() time.Time { return issued }
	token, _, err := tokens.Issue()
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, tokens.Verify(token), ErrTokenInvalid)
}

func TestFormTokens_NilRejects(t *testing.T) {
	tokens := NewFormTokens("", 0)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, tokens.Verify("anything"), ErrTokenInvalid)

	rec := httptest.NewRecorder()
	tokens.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/form-token", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFormTokens_ServeHTTP(t *testing.T) {
	tokens := NewFormTokens("form-secret", time.Hour)
	rec := httptest.NewRecorder()
	tokens.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/form-token", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NoError(t, tokens.Verify(body["token"]))
	assert.NotEmpty(t, body["expires_at"])
}

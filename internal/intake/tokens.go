package intake

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const formTokenAudience = "lead-form"

// ErrTokenInvalid covers missing, expired and forged form tokens.
var ErrTokenInvalid = errors.New("intake: invalid form token")

// FormTokens issues and verifies short-lived HMAC tokens that a rendered
// form echoes back on submit.
type FormTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFormTokens returns nil when secret is empty; a nil *FormTokens
// rejects every token.
func NewFormTokens(secret string, ttl time.Duration) *FormTokens {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &FormTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a new token and reports when it expires.
func (t *FormTokens) Issue() (string, time.Time, error) {
	if t == nil {
		return "", time.Time{}, errors.New("intake: form tokens not configured")
	}
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{formTokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("intake: sign form token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, audience and expiry.
func (t *FormTokens) Verify(token string) error {
	token = strings.TrimSpace(token)
	if t == nil || token == "" {
		return ErrTokenInvalid
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(formTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return nil
}

// ServeHTTP handles GET /api/form-token.
func (t *FormTokens) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	token, expires, err := t.Issue()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "form tokens unavailable"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

package intake

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/medici-leads/internal/leads"
)

var (
	ErrHoneypot        = errors.New("intake: honeypot triggered")
	ErrSuspiciousAgent = errors.New("intake: suspicious user agent")
	ErrForeignReferer  = errors.New("intake: cross-origin referer")
)

const minUserAgentLength = 10

// PublicGuard screens tokenless public-form requests with cheap bot
// heuristics.
type PublicGuard struct {
	siteURL string
}

// NewPublicGuard builds a guard. An empty siteURL disables the referer check.
func NewPublicGuard(siteURL string) *PublicGuard {
	return &PublicGuard{siteURL: strings.TrimRight(siteURL, "/")}
}

// Check returns the first heuristic the request fails, or nil.
func (g *PublicGuard) Check(r *http.Request, s leads.Submission) error {
	for _, v := range []string{s.Website, s.URL, s.Company} {
		if strings.TrimSpace(v) != "" {
			return ErrHoneypot
		}
	}
	if len(strings.TrimSpace(r.UserAgent())) < minUserAgentLength {
		return ErrSuspiciousAgent
	}
	if referer := r.Referer(); referer != "" && g.siteURL != "" && !strings.HasPrefix(referer, g.siteURL) {
		return ErrForeignReferer
	}
	return nil
}

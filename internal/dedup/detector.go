package dedup

import (
	"context"
	"strings"
	"time"
)

// DefaultWindow is how far back a submission counts as a duplicate.
const DefaultWindow = 24 * time.Hour

// Finder looks up the newest stored lead matching email or phone since a cutoff.
type Finder interface {
	FindRecent(ctx context.Context, email, phone string, since time.Time) (string, error)
}

// Detector finds recent matching submissions. It never blocks anything itself.
type Detector struct {
	finder Finder
	window time.Duration
	now    func() time.Time
}

func NewDetector(finder Finder, window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{finder: finder, window: window, now: time.Now}
}

// FindDuplicate returns the id of the most recent lead inside the window
// that shares the email (case-insensitive) or the normalized phone, or "".
func (d *Detector) FindDuplicate(ctx context.Context, email, phone string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return "", nil
	}
	return d.finder.FindRecent(ctx, email, phone, d.now().Add(-d.window))
}

// Policy decides what the pipeline does with a detected duplicate.
type Policy string

const (
	PolicyAllow  Policy = "allow"
	PolicyWarn   Policy = "warn"
	PolicyReject Policy = "reject"
)

// ParsePolicy maps configuration text onto a Policy, defaulting to allow.
func ParsePolicy(raw string) Policy {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyWarn, PolicyReject:
		return p
	default:
		return PolicyAllow
	}
}

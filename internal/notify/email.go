package notify

import (
	"context"
	"net/mail"
	"strings"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

const defaultFromName = "Medici Leads"

// EmailSender delivers a rendered message. SendGrid, SES and the stub are
// interchangeable.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered lead notification.
type EmailMessage struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body

	// Category groups messages in provider analytics (new_lead, test).
	Category   string
	LeadID     string
	ScoreLabel string
}

// Tags returns the non-empty tracking values attached to the message.
// Providers map them to categories, custom args or message tags.
func (m EmailMessage) Tags() map[string]string {
	tags := make(map[string]string, 3)
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			tags[k] = v
		}
	}
	set("category", m.Category)
	set("lead_id", m.LeadID)
	set("score_label", m.ScoreLabel)
	return tags
}

// sender is the From identity shared by the transports.
type sender struct {
	email string
	name  string
}

func newSender(email, name string) sender {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFromName
	}
	return sender{email: strings.TrimSpace(email), name: name}
}

// address renders an RFC 5322 mailbox; non-ASCII names are MIME encoded.
func (s sender) address() string {
	return (&mail.Address{Name: s.name, Address: s.email}).String()
}

// StubEmailSender logs instead of sending. Used in development when no
// provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send lead notification",
		"to", logging.MaskEmail(msg.To),
		"subject", msg.Subject,
		"lead_id", msg.LeadID,
		"score_label", msg.ScoreLabel,
	)
	return nil
}

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for AWS SES. ConfigurationSet, when set,
// routes delivery events through that SES configuration set.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ConfigurationSet string
}

// SESSender sends lead notifications through SES v2. Message tags are
// attached as SES message tags.
type SESSender struct {
	client    sesAPI
	from      sender
	configSet string
	logger    *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{
		client:    client,
		from:      newSender(cfg.FromEmail, cfg.FromName),
		configSet: strings.TrimSpace(cfg.ConfigurationSet),
		logger:    logger,
	}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	to := msg.To
	if msg.ToName != "" {
		to = newSender(msg.To, msg.ToName).address()
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.address()),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		EmailTags: sesTags(msg.Tags()),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "lead_id", msg.LeadID, "to", logging.MaskEmail(msg.To))
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("lead notification sent", "provider", "ses", "lead_id", msg.LeadID, "message_id", aws.ToString(output.MessageId))
	return nil
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// sesTags converts tags to SES message tags. SES accepts only ASCII
// letters, digits, underscores and dashes in names and values.
func sesTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.MessageTag, 0, len(tags))
	for _, k := range []string{"category", "lead_id", "score_label"} {
		v, ok := tags[k]
		if !ok {
			continue
		}
		out = append(out, types.MessageTag{Name: aws.String(k), Value: aws.String(sesTagValue(v))})
	}
	return out
}

func sesTagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, v)
}

var _ EmailSender = (*SESSender)(nil)

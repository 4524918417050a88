package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/medici-leads/internal/config"
	"github.com/wolfman30/medici-leads/internal/notify"
	"github.com/wolfman30/medici-leads/internal/observability/metrics"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

const siteName = "Medici"

// BuildEmailSender picks SES, then SendGrid, then the logging stub in
// development. It returns nil when no provider is configured.
func BuildEmailSender(cfg *appconfig.Config, infra Infra, logger *logging.Logger) (notify.EmailSender, string) {
	if cfg.SESFromEmail != "" && infra.AWS != nil {
		sender := notify.NewSESSender(sesv2.NewFromConfig(*infra.AWS), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SendGridFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
		if sender != nil {
			return sender, "ses"
		}
	}
	if cfg.EmailOnlySES {
		return nil, "disabled"
	}
	if cfg.SendGridAPIKey != "" {
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender, "sendgrid"
		}
	}
	if strings.EqualFold(cfg.Env, "development") {
		return notify.NewStubEmailSender(logger), "stub"
	}
	return nil, "disabled"
}

// BuildNotifier assembles every notification channel. Unconfigured channels
// are still registered so the status endpoint can report them.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, infra Infra, dm *metrics.DeliveryMetrics, logger *logging.Logger) *notify.Manager {
	if logger == nil {
		logger = logging.Default()
	}

	sender, provider := BuildEmailSender(cfg, infra, logger)
	email := notify.NewEmailChannel(sender, cfg.NotifyEmail, siteName, cfg.SiteURL)
	logger.Info("email notifications", "provider", provider, "configured", email.Configured())

	channels := []notify.Channel{
		email,
		notify.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.SiteURL, nil),
		notify.NewSheetsWebhookChannel(cfg.SheetsWebhookURL, nil),
	}

	if cfg.SheetsSpreadsheet != "" && cfg.SheetsCredentials != "" {
		sheetsAPI, err := notify.NewSheetsAPIChannel(ctx, cfg.SheetsSpreadsheet, cfg.SheetsRange,
			option.WithCredentialsFile(cfg.SheetsCredentials),
		)
		if err != nil {
			logger.Warn("sheets api channel disabled", "error", err)
		} else {
			channels = append(channels, sheetsAPI)
		}
	}

	return notify.NewManager(logger, channels...).WithMetrics(dm)
}

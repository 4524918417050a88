package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	SiteURL        string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	FormTokenSecret    string
	FormTokenTTL       time.Duration
	CORSAllowedOrigins []string

	// Intake and anti-abuse
	RateLimitMax      int
	RateLimitWindow   time.Duration
	DuplicateWindow   time.Duration
	DuplicatePolicy   string
	ScoringEnabled    bool
	CRMSyncThreshold  int
	CRMWebhookURL     string
	AttemptLogSize    int
	ZapierSecret      string
	ZapierLogSize     int
	DestinationsFile  string
	WebhookTimeout    time.Duration
	DeliveryQueueURL  string
	DeliveryJobsTable string

	// Notification channels
	NotifyEmail        string
	TelegramBotToken   string
	TelegramChatID     string
	SheetsWebhookURL   string
	SheetsSpreadsheet  string
	SheetsRange        string
	SheetsCredentials  string
	ArchiveBucket      string
	LiveFeedEnabled    bool
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	DeliveryBatchSize  int

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// SES Email Configuration
	SESFromEmail        string
	SESConfigurationSet string
	EmailOnlySES        bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		SiteURL:        strings.TrimRight(getEnv("SITE_URL", ""), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 4),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		FormTokenSecret:    getEnv("FORM_TOKEN_SECRET", ""),
		FormTokenTTL:       getEnvAsDuration("FORM_TOKEN_TTL", 2*time.Hour),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RateLimitMax:      getEnvAsInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", 300*time.Second),
		DuplicateWindow:   getEnvAsDuration("DUPLICATE_WINDOW", 24*time.Hour),
		DuplicatePolicy:   strings.ToLower(strings.TrimSpace(getEnv("DUPLICATE_POLICY", "allow"))),
		ScoringEnabled:    getEnvAsBool("SCORING_ENABLED", true),
		CRMSyncThreshold:  getEnvAsInt("CRM_SYNC_THRESHOLD", 40),
		CRMWebhookURL:     getEnv("CRM_WEBHOOK_URL", ""),
		AttemptLogSize:    getEnvAsInt("WEBHOOK_LOG_SIZE", 50),
		ZapierSecret:      getEnv("ZAPIER_SECRET", ""),
		ZapierLogSize:     getEnvAsInt("ZAPIER_LOG_SIZE", 50),
		DestinationsFile:  getEnv("WEBHOOK_DESTINATIONS_FILE", ""),
		WebhookTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		DeliveryQueueURL:  getEnv("DELIVERY_QUEUE_URL", ""),
		DeliveryJobsTable: getEnv("DELIVERY_JOBS_TABLE", ""),

		NotifyEmail:        getEnv("NOTIFY_EMAIL", ""),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		SheetsWebhookURL:   getEnv("SHEETS_WEBHOOK_URL", ""),
		SheetsSpreadsheet:  getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsRange:        getEnv("SHEETS_RANGE", "Leads!A:N"),
		SheetsCredentials:  getEnv("SHEETS_CREDENTIALS_FILE", ""),
		ArchiveBucket:      getEnv("ARCHIVE_BUCKET", ""),
		LiveFeedEnabled:    getEnvAsBool("LIVE_FEED_ENABLED", true),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		DeliveryBatchSize:  getEnvAsInt("DELIVERY_BATCH_SIZE", 10),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Medici Leads"),

		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		EmailOnlySES:        getEnvAsBool("EMAIL_ONLY_SES", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

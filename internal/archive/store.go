package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LeadRecord is the pseudonymized copy of a lead kept for attribution
// analysis.
type LeadRecord struct {
	Version      string           `json:"version"`
	LeadID       string           `json:"lead_id"`
	EmailHash    string           `json:"email_hash"`
	EmailDomain  string           `json:"email_domain"`
	PhoneHash    string           `json:"phone_hash,omitempty"`
	Service      string           `json:"service"`
	Message      string           `json:"message,omitempty"`
	PageURL      string           `json:"page_url,omitempty"`
	UTM          leads.UTM        `json:"utm"`
	Engagement   leads.Engagement `json:"engagement"`
	QualityScore int              `json:"quality_score"`
	Score        int              `json:"score"`
	ScoreLabel   string           `json:"score_label"`
	Warnings     []string         `json:"warnings,omitempty"`
	Origin       string           `json:"origin"`
	CreatedAt    time.Time        `json:"created_at"`
	ArchivedAt   time.Time        `json:"archived_at"`
}

// NewLeadRecord strips direct identifiers from lead.
func NewLeadRecord(lead *leads.Lead, now time.Time) *LeadRecord {
	return &LeadRecord{
		Version:      "1.0",
		LeadID:       lead.ID,
		EmailHash:    Hash(lead.Email),
		EmailDomain:  leads.EmailDomain(lead.Email),
		PhoneHash:    Hash(lead.Phone),
		Service:      lead.Service,
		Message:      ScrubPII(lead.Message),
		PageURL:      lead.PageURL,
		UTM:          lead.UTM,
		Engagement:   lead.Engagement,
		QualityScore: lead.QualityScore,
		Score:        lead.Score,
		ScoreLabel:   lead.ScoreLabel,
		Warnings:     append([]string(nil), lead.Warnings...),
		Origin:       lead.Origin,
		CreatedAt:    lead.CreatedAt,
		ArchivedAt:   now,
	}
}

// ManifestEntry is one line in the monthly JSONL index.
type ManifestEntry struct {
	LeadID     string `json:"lead_id"`
	S3Key      string `json:"s3_key"`
	Service    string `json:"service"`
	UTMSource  string `json:"utm_source"`
	ScoreLabel string `json:"score_label"`
	ArchivedAt string `json:"archived_at"`
}

// Store archives lead records to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		tracer:   otel.Tracer("medici.internal.archive"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveLead writes a pseudonymized lead record and indexes it in the
// monthly manifest.
func (s *Store) ArchiveLead(ctx context.Context, lead *leads.Lead) error {
	if !s.Enabled() {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "archive.lead",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("medici.lead_id", lead.ID)),
	)
	defer span.End()

	now := s.now()
	record := NewLeadRecord(lead, now)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := fmt.Sprintf("leads/v1/by-date/%d/%02d/%02d/%s.json", now.Year(), now.Month(), now.Day(), record.LeadID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived lead to S3", "lead_id", record.LeadID, "s3_key", key)

	entry := ManifestEntry{
		LeadID:     record.LeadID,
		S3Key:      key,
		Service:    record.Service,
		UTMSource:  record.UTM.Source,
		ScoreLabel: record.ScoreLabel,
		ArchivedAt: now.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The record itself is stored.
		s.logger.Warn("failed to append manifest", "error", err, "lead_id", record.LeadID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest. S3 has no
// append, so this is read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now()
	manifestKey := fmt.Sprintf("leads/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}

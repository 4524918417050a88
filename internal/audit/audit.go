// Package audit keeps an append-only trail of lead pipeline events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Event is one immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	SubjectID string          `json:"subject_id,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// tagKeys are detail fields copied into the indexed tags column.
var tagKeys = []string{"origin", "score_label", "status", "new_status", "source"}

// Service writes and queries audit events.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (id, event_type, subject_id, tags, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.SubjectID),
		pq.Array(event.Tags),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// Record stores a pipeline event, lifting well-known detail values into tags.
func (s *Service) Record(ctx context.Context, eventType, subjectID string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	return s.LogEvent(ctx, Event{
		EventType: eventType,
		SubjectID: subjectID,
		Tags:      tagsFrom(details),
		Details:   raw,
	})
}

func tagsFrom(details map[string]any) []string {
	var tags []string
	for _, key := range tagKeys {
		if v, ok := details[key].(string); ok && v != "" {
			tags = append(tags, key+":"+v)
		}
	}
	sort.Strings(tags)
	return tags
}

// Filter narrows Query results.
type Filter struct {
	EventType string
	SubjectID string
	Tag       string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit events, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, subject_id, tags, details, created_at
		FROM audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if filter.Tag != "" {
		query += fmt.Sprintf(" AND $%d = ANY(tags)", argIdx)
		args = append(args, filter.Tag)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			subject sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &subject, pq.Array(&e.Tags), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.SubjectID = subject.String
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const leadColumns = `id, name, email, phone, service, message, page_url,
	utm_source, utm_medium, utm_campaign, utm_term, utm_content, engagement,
	status, quality_score, score, score_label, warnings, COALESCE(duplicate_of, ''),
	origin, crm_synced, created_at, updated_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool or connection.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.toLead(uuid.New().String(), time.Now().UTC())
	warnings := lead.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO leads (id, name, email, phone, service, message, page_url,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content, engagement,
			status, quality_score, score, score_label, warnings, duplicate_of, origin,
			crm_synced, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NULLIF($19, ''), $20, $21, $22, $23)`,
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Service, lead.Message, lead.PageURL,
		lead.UTM.Source, lead.UTM.Medium, lead.UTM.Campaign, lead.UTM.Term, lead.UTM.Content,
		MarshalEngagement(lead.Engagement),
		string(lead.Status), lead.QualityScore, lead.Score, lead.ScoreLabel, warnings,
		lead.DuplicateOf, lead.Origin, lead.CRMSynced, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first, optionally filtered by status or score label.
func (r *PostgresRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR score_label = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		string(filter.Status), filter.ScoreLabel, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status and returns the previous one in a single round trip.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (Status, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return "", err
	}
	var old string
	err := r.db.QueryRow(ctx, `
		UPDATE leads AS l
		SET status = $2, updated_at = NOW()
		FROM (SELECT id, status FROM leads WHERE id = $1 FOR UPDATE) AS prev
		WHERE l.id = prev.id
		RETURNING prev.status`, id, string(status)).Scan(&old)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLeadNotFound
		}
		return "", fmt.Errorf("leads: update status: %w", err)
	}
	return Status(old), nil
}

// UpdateScore stores a recomputed marketing score.
func (r *PostgresRepository) UpdateScore(ctx context.Context, id string, score int, label string) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET score = $2, score_label = $3, updated_at = NOW() WHERE id = $1`, id, score, label)
	if err != nil {
		return fmt.Errorf("leads: update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// MarkCRMSynced flags a lead as forwarded to the CRM.
func (r *PostgresRepository) MarkCRMSynced(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET crm_synced = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("leads: mark crm synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// FindRecent returns the newest lead since the cutoff that shares the email or phone.
func (r *PostgresRepository) FindRecent(ctx context.Context, email, phone string, since time.Time) (string, error) {
	if email == "" && phone == "" {
		return "", nil
	}
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM leads
		WHERE created_at > $3
		  AND (($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2))
		ORDER BY created_at DESC
		LIMIT 1`, email, phone, since).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("leads: find recent: %w", err)
	}
	return id, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead       Lead
		status     string
		engagement []byte
	)
	if err := row.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Service, &lead.Message, &lead.PageURL,
		&lead.UTM.Source, &lead.UTM.Medium, &lead.UTM.Campaign, &lead.UTM.Term, &lead.UTM.Content,
		&engagement,
		&status, &lead.QualityScore, &lead.Score, &lead.ScoreLabel, &lead.Warnings, &lead.DuplicateOf,
		&lead.Origin, &lead.CRMSynced, &lead.CreatedAt, &lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = Status(status)
	if len(engagement) > 0 {
		if err := json.Unmarshal(engagement, &lead.Engagement); err != nil {
			return nil, fmt.Errorf("decode engagement: %w", err)
		}
	}
	return &lead, nil
}

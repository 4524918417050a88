package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// SubscriberRepository stores newsletter subscriptions.
type SubscriberRepository interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*Subscriber, error)
	Count(ctx context.Context) (int, error)
}

// NormalizeSubscribeRequest cleans and validates a subscription payload.
func NormalizeSubscribeRequest(req SubscribeRequest) (SubscribeRequest, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !IsValidEmail(req.Email) {
		return req, ErrInvalidEmail
	}
	if isBlockedDomain(EmailDomain(req.Email)) {
		return req, ErrInvalidEmail
	}
	req.Source = SanitizeText(req.Source)
	if req.Source == "" {
		req.Source = "website"
	}
	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		if t := SanitizeUTMExtra(tag); t != "" {
			tags = append(tags, t)
		}
	}
	req.Tags = tags
	req.PageURL = strings.TrimSpace(req.PageURL)
	req.UTMSource = NormalizeSource(req.UTMSource).Value
	req.UTMMedium = NormalizeMedium(req.UTMMedium).Value
	req.UTMCampaign = SanitizeUTMExtra(req.UTMCampaign)
	return req, nil
}

func newSubscriber(req SubscribeRequest, now time.Time) *Subscriber {
	return &Subscriber{
		ID:      uuid.New().String(),
		Email:   req.Email,
		Source:  req.Source,
		Tags:    req.Tags,
		PageURL: req.PageURL,
		UTM: UTM{
			Source:   req.UTMSource,
			Medium:   req.UTMMedium,
			Campaign: req.UTMCampaign,
		},
		CreatedAt: now,
	}
}

// InMemorySubscriberRepository keeps subscribers keyed by email.
type InMemorySubscriberRepository struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func NewInMemorySubscriberRepository() *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{subs: make(map[string]*Subscriber)}
}

func (r *InMemorySubscriberRepository) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscriber, error) {
	req, err := NormalizeSubscribeRequest(req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[req.Email]; exists {
		return nil, ErrAlreadySubscribed
	}
	sub := newSubscriber(req, time.Now().UTC())
	r.subs[req.Email] = sub
	cp := *sub
	return &cp, nil
}

func (r *InMemorySubscriberRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs), nil
}

// PostgresSubscriberRepository relies on the unique index on email.
type PostgresSubscriberRepository struct {
	db DB
}

func NewPostgresSubscriberRepository(db DB) *PostgresSubscriberRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresSubscriberRepository{db: db}
}

func (r *PostgresSubscriberRepository) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscriber, error) {
	req, err := NormalizeSubscribeRequest(req)
	if err != nil {
		return nil, err
	}
	sub := newSubscriber(req, time.Now().UTC())
	_, err = r.db.Exec(ctx, `
		INSERT INTO subscribers (id, email, source, tags, page_url, utm_source, utm_medium, utm_campaign, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.Email, sub.Source, sub.Tags, sub.PageURL,
		sub.UTM.Source, sub.UTM.Medium, sub.UTM.Campaign, sub.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("leads: insert subscriber: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriberRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("leads: count subscribers: %w", err)
	}
	return n, nil
}

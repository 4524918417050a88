package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gopkg.in/yaml.v3"
)

// DestinationStore persists webhook destinations.
type DestinationStore interface {
	List(ctx context.Context) ([]Destination, error)
	Get(ctx context.Context, id string) (*Destination, error)
	Create(ctx context.Context, d Destination) (*Destination, error)
	Update(ctx context.Context, id string, d Destination) (*Destination, error)
	Delete(ctx context.Context, id string) error
}

// MemoryDestinationStore keeps destinations in process.
type MemoryDestinationStore struct {
	mu    sync.RWMutex
	items map[string]Destination
}

func NewMemoryDestinationStore() *MemoryDestinationStore {
	return &MemoryDestinationStore{items: make(map[string]Destination)}
}

func (s *MemoryDestinationStore) List(_ context.Context) ([]Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Destination, 0, len(s.items))
	for _, d := range s.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryDestinationStore) Get(_ context.Context, id string) (*Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[id]
	if !ok {
		return nil, ErrDestinationNotFound
	}
	return &d, nil
}

func (s *MemoryDestinationStore) Create(_ context.Context, d Destination) (*Destination, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[d.ID] = d
	return &d, nil
}

func (s *MemoryDestinationStore) Update(_ context.Context, id string, d Destination) (*Destination, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[id]
	if !ok {
		return nil, ErrDestinationNotFound
	}
	d.ID = id
	if d.keepsCredential() {
		d.AuthValue = existing.AuthValue
	}
	// Moving a destination to a new URL drops trust; the new host must pass
	// the egress allow-list.
	d.Trusted = existing.Trusted && existing.URL == d.URL
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.items[id] = d
	return &d, nil
}

func (s *MemoryDestinationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrDestinationNotFound
	}
	delete(s.items, id)
	return nil
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const destinationColumns = `id, name, url, events, enabled, auth_type, auth_value, custom_headers, trusted, created_at, updated_at`

// PostgresDestinationStore stores destinations in webhook_destinations.
type PostgresDestinationStore struct {
	db DB
}

func NewPostgresDestinationStore(db DB) *PostgresDestinationStore {
	if db == nil {
		panic("webhooks: pgx pool required")
	}
	return &PostgresDestinationStore{db: db}
}

func (s *PostgresDestinationStore) List(ctx context.Context) ([]Destination, error) {
	rows, err := s.db.Query(ctx, `SELECT `+destinationColumns+` FROM webhook_destinations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("webhooks: list destinations: %w", err)
	}
	defer rows.Close()
	out := []Destination{}
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("webhooks: scan destination: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresDestinationStore) Get(ctx context.Context, id string) (*Destination, error) {
	d, err := scanDestination(s.db.QueryRow(ctx, `SELECT `+destinationColumns+` FROM webhook_destinations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDestinationNotFound
		}
		return nil, fmt.Errorf("webhooks: get destination: %w", err)
	}
	return d, nil
}

func (s *PostgresDestinationStore) Create(ctx context.Context, d Destination) (*Destination, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	headers, _ := json.Marshal(d.CustomHeaders)

	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_destinations (`+destinationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.Name, d.URL, eventStrings(d.Events), d.Enabled, string(d.AuthType), d.AuthValue, headers, d.Trusted, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("webhooks: insert destination: %w", err)
	}
	return &d, nil
}

func (s *PostgresDestinationStore) Update(ctx context.Context, id string, d Destination) (*Destination, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	headers, _ := json.Marshal(d.CustomHeaders)
	keepAuth := d.keepsCredential()
	if keepAuth {
		d.AuthValue = ""
	}
	// SET expressions see the pre-update row, so trust survives only when the
	// URL is unchanged.
	updated, err := scanDestination(s.db.QueryRow(ctx, `
		UPDATE webhook_destinations
		SET name = $2, url = $3, events = $4, enabled = $5, auth_type = $6,
			auth_value = CASE WHEN $9 THEN auth_value ELSE $7 END,
			custom_headers = $8,
			trusted = trusted AND url = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+destinationColumns,
		id, d.Name, d.URL, eventStrings(d.Events), d.Enabled, string(d.AuthType), d.AuthValue, headers, keepAuth,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDestinationNotFound
		}
		return nil, fmt.Errorf("webhooks: update destination: %w", err)
	}
	return updated, nil
}

func (s *PostgresDestinationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhook_destinations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("webhooks: delete destination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDestinationNotFound
	}
	return nil
}

func scanDestination(row pgx.Row) (*Destination, error) {
	var (
		d        Destination
		events   []string
		authType string
		headers  []byte
	)
	if err := row.Scan(&d.ID, &d.Name, &d.URL, &events, &d.Enabled, &authType, &d.AuthValue, &headers, &d.Trusted, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.AuthType = AuthType(authType)
	d.Events = make([]Event, 0, len(events))
	for _, e := range events {
		d.Events = append(d.Events, Event(e))
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &d.CustomHeaders); err != nil {
			return nil, fmt.Errorf("decode custom headers: %w", err)
		}
	}
	return &d, nil
}

func eventStrings(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e))
	}
	return out
}

type seedFile struct {
	Destinations []Destination `yaml:"destinations"`
}

// LoadSeedFile reads operator-configured destinations from YAML. Seeded
// destinations are trusted.
func LoadSeedFile(path string) ([]Destination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("webhooks: read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("webhooks: parse seed file: %w", err)
	}
	for i := range f.Destinations {
		if err := f.Destinations[i].Normalize(); err != nil {
			return nil, fmt.Errorf("webhooks: seed destination %d: %w", i, err)
		}
		f.Destinations[i].Trusted = true
	}
	return f.Destinations, nil
}

// Seed inserts seed destinations whose id is not yet stored.
func Seed(ctx context.Context, store DestinationStore, seeds []Destination) (int, error) {
	created := 0
	for _, d := range seeds {
		if d.ID != "" {
			if _, err := store.Get(ctx, d.ID); err == nil {
				continue
			} else if !errors.Is(err, ErrDestinationNotFound) {
				return created, err
			}
		}
		if _, err := store.Create(ctx, d); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

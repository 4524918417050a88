package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Status, error)
	UpdateScore(ctx context.Context, id string, score int, label string) error
	MarkCRMSynced(ctx context.Context, id string) error
	// FindRecent returns the newest lead created after since whose email or
	// phone matches, or "" when there is none.
	FindRecent(ctx context.Context, email, phone string, since time.Time) (string, error)
}

// ListLeadsFilter narrows a lead listing.
type ListLeadsFilter struct {
	Status     Status
	ScoreLabel string
	Limit      int
	Offset     int
}

func (f ListLeadsFilter) normalized() ListLeadsFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// InMemoryRepository is a Repository backed by a mutex-guarded map
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.toLead(uuid.New().String(), r.now())

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return cloneLead(lead), nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	return cloneLead(lead), nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()

	r.mu.RLock()
	all := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.ScoreLabel != "" && lead.ScoreLabel != filter.ScoreLabel {
			continue
		}
		all = append(all, cloneLead(lead))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if filter.Offset >= len(all) {
		return []*Lead{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

// UpdateStatus sets the status and returns the previous one.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) (Status, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return "", ErrLeadNotFound
	}
	old := lead.Status
	lead.Status = status
	lead.UpdatedAt = r.now()
	return old, nil
}

// UpdateScore stores a recomputed marketing score.
func (r *InMemoryRepository) UpdateScore(ctx context.Context, id string, score int, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Score = score
	lead.ScoreLabel = label
	lead.UpdatedAt = r.now()
	return nil
}

// MarkCRMSynced flags a lead as forwarded to the CRM.
func (r *InMemoryRepository) MarkCRMSynced(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.CRMSynced = true
	lead.UpdatedAt = r.now()
	return nil
}

// FindRecent scans for the newest match by email or phone.
func (r *InMemoryRepository) FindRecent(ctx context.Context, email, phone string, since time.Time) (string, error) {
	if email == "" && phone == "" {
		return "", nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Lead
	for _, lead := range r.leads {
		if !lead.CreatedAt.After(since) {
			continue
		}
		matched := (email != "" && lead.Email == email) || (phone != "" && lead.Phone == phone)
		if !matched {
			continue
		}
		if best == nil || lead.CreatedAt.After(best.CreatedAt) {
			best = lead
		}
	}
	if best == nil {
		return "", nil
	}
	return best.ID, nil
}

func cloneLead(l *Lead) *Lead {
	cp := *l
	cp.Warnings = append([]string(nil), l.Warnings...)
	return &cp
}

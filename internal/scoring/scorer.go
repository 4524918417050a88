package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/medici-leads/internal/leads"
)

// Label classifies a score.
type Label string

const (
	LabelHot  Label = "hot"
	LabelWarm Label = "warm"
	LabelCold Label = "cold"
)

// Text is the human readable form sent to CRMs.
func (l Label) Text() string {
	switch l {
	case LabelHot:
		return "Hot Lead (70+)"
	case LabelWarm:
		return "Warm Lead (40-69)"
	case LabelCold:
		return "Cold Lead (0-39)"
	default:
		return "Unknown"
	}
}

// LabelFor maps a score onto hot/warm/cold.
func LabelFor(score int) Label {
	switch {
	case score >= HotThreshold:
		return LabelHot
	case score >= WarmThreshold:
		return LabelWarm
	default:
		return LabelCold
	}
}

// Input is the subset of a lead the scorer reads.
type Input struct {
	Source          string
	Medium          string
	Service         string
	Phone           string
	Message         string
	VisitedServices bool
	VisitedCases    bool
	ReadBlog        bool
	ReturningUser   bool
}

// InputFromLead extracts scoring input from a stored lead.
func InputFromLead(l *leads.Lead) Input {
	return Input{
		Source:          l.UTM.Source,
		Medium:          l.UTM.Medium,
		Service:         l.Service,
		Phone:           l.Phone,
		Message:         l.Message,
		VisitedServices: l.Engagement.VisitedServices,
		VisitedCases:    l.Engagement.VisitedCases,
		ReadBlog:        l.Engagement.ReadBlog,
		ReturningUser:   l.Engagement.ReturningUser,
	}
}

// Bonuses itemizes the engagement and completeness points.
type Bonuses struct {
	Phone           int `json:"has_phone"`
	Message         int `json:"has_message"`
	LongMessage     int `json:"long_message"`
	VisitedServices int `json:"visited_services"`
	VisitedCases    int `json:"visited_cases"`
	ReadBlog        int `json:"read_blog"`
	ReturningUser   int `json:"returning_user"`
}

// Sum adds every bonus.
func (b Bonuses) Sum() int {
	return b.Phone + b.Message + b.LongMessage + b.VisitedServices + b.VisitedCases + b.ReadBlog + b.ReturningUser
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Source  Source  `json:"source"`
	Medium  Medium  `json:"medium"`
	Service Service `json:"service"`

	SourcePoints  int     `json:"source_points"`
	MediumPoints  int     `json:"medium_points"`
	ServicePoints int     `json:"service_points"`
	Bonuses       Bonuses `json:"bonuses"`

	Total int   `json:"total"`
	Label Label `json:"label"`
}

// BreakdownFor computes the itemized score. It is pure and idempotent.
func BreakdownFor(in Input) Breakdown {
	b := Breakdown{
		Source:  ParseSource(in.Source),
		Medium:  ParseMedium(in.Medium),
		Service: ParseService(in.Service),
	}
	b.SourcePoints = b.Source.Points()
	b.MediumPoints = b.Medium.Points()
	b.ServicePoints = b.Service.Points()

	if strings.TrimSpace(in.Phone) != "" {
		b.Bonuses.Phone = BonusPhone
	}
	if msg := strings.TrimSpace(in.Message); msg != "" {
		b.Bonuses.Message = BonusMessage
		if utf8.RuneCountInString(msg) > LongMessageThreshold {
			b.Bonuses.LongMessage = BonusLongMessage
		}
	}
	if in.VisitedServices {
		b.Bonuses.VisitedServices = BonusVisitedServices
	}
	if in.VisitedCases {
		b.Bonuses.VisitedCases = BonusVisitedCases
	}
	if in.ReadBlog {
		b.Bonuses.ReadBlog = BonusReadBlog
	}
	if in.ReturningUser {
		b.Bonuses.ReturningUser = BonusReturningUser
	}

	b.Total = clamp(b.SourcePoints + b.MediumPoints + b.ServicePoints + b.Bonuses.Sum())
	b.Label = LabelFor(b.Total)
	return b
}

// Calculate returns the total score in [0,100].
func Calculate(in Input) int {
	return BreakdownFor(in).Total
}

// ShouldSyncToCRM gates CRM forwarding on the threshold.
func ShouldSyncToCRM(score, threshold int) bool {
	return score >= threshold
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Store persists recomputed scores.
type Store interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
	UpdateScore(ctx context.Context, id string, score int, label string) error
}

// Scorer applies the tables with the runtime flags.
type Scorer struct {
	enabled   bool
	threshold int
	store     Store
}

// NewScorer builds a scorer. A non-positive threshold uses the default.
func NewScorer(enabled bool, threshold int, store Store) *Scorer {
	if threshold <= 0 {
		threshold = DefaultCRMThreshold
	}
	return &Scorer{enabled: enabled, threshold: threshold, store: store}
}

// Enabled reports whether scoring runs at all.
func (s *Scorer) Enabled() bool { return s.enabled }

// Threshold is the minimum score forwarded to the CRM.
func (s *Scorer) Threshold() int { return s.threshold }

// Score computes the breakdown for a lead. With scoring disabled it reports
// zero points and a cold label.
func (s *Scorer) Score(l *leads.Lead) Breakdown {
	if !s.enabled {
		return Breakdown{Label: LabelCold}
	}
	return BreakdownFor(InputFromLead(l))
}

// ShouldSync reports whether the lead qualifies for CRM sync. Disabled
// scoring syncs everything.
func (s *Scorer) ShouldSync(l *leads.Lead) bool {
	if !s.enabled {
		return true
	}
	return ShouldSyncToCRM(l.Score, s.threshold)
}

// Rescore recomputes and stores the score for a persisted lead. With scoring
// disabled the stored score is returned untouched.
func (s *Scorer) Rescore(ctx context.Context, id string) (*leads.Lead, error) {
	if s.store == nil {
		return nil, fmt.Errorf("scoring: no store configured")
	}
	lead, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.enabled {
		return lead, nil
	}
	b := s.Score(lead)
	if err := s.store.UpdateScore(ctx, id, b.Total, string(b.Label)); err != nil {
		return nil, fmt.Errorf("scoring: update score: %w", err)
	}
	lead.Score = b.Total
	lead.ScoreLabel = string(b.Label)
	return lead, nil
}

// CRMData is the payload handed to CRM sinks.
type CRMData struct {
	LeadID      string    `json:"lead_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Service     string    `json:"service"`
	Message     string    `json:"message,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UTMSource   string    `json:"utm_source"`
	UTMMedium   string    `json:"utm_medium"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	UTMTerm     string    `json:"utm_term,omitempty"`
	UTMContent  string    `json:"utm_content,omitempty"`

	LeadScore      int       `json:"lead_score"`
	LeadLabel      Label     `json:"lead_label"`
	LeadLabelText  string    `json:"lead_label_text"`
	ScoreBreakdown Breakdown `json:"score_breakdown"`
	Sync           bool      `json:"sync"`
}

// CRMData assembles the CRM payload for a scored lead.
func (s *Scorer) CRMData(l *leads.Lead) CRMData {
	b := s.Score(l)
	status := string(l.Status)
	if status == "" {
		status = string(leads.StatusNew)
	}
	label := LabelFor(l.Score)
	return CRMData{
		LeadID:         l.ID,
		Name:           l.Name,
		Email:          l.Email,
		Phone:          l.Phone,
		Service:        l.Service,
		Message:        l.Message,
		PageURL:        l.PageURL,
		Status:         status,
		CreatedAt:      l.CreatedAt,
		UTMSource:      l.UTM.Source,
		UTMMedium:      l.UTM.Medium,
		UTMCampaign:    l.UTM.Campaign,
		UTMTerm:        l.UTM.Term,
		UTMContent:     l.UTM.Content,
		LeadScore:      l.Score,
		LeadLabel:      label,
		LeadLabelText:  label.Text(),
		ScoreBreakdown: b,
		Sync:           s.ShouldSync(l),
	}
}

// Config describes the active tables for the admin endpoint.
type Config struct {
	Enabled    bool            `json:"enabled"`
	Thresholds map[string]int  `json:"thresholds"`
	Sources    map[Source]int  `json:"sources"`
	Mediums    map[Medium]int  `json:"mediums"`
	Services   map[Service]int `json:"services"`
	Bonuses    map[string]int  `json:"bonuses"`
}

// Config snapshots the scoring tables.
func (s *Scorer) Config() Config {
	cfg := Config{
		Enabled: s.enabled,
		Thresholds: map[string]int{
			"hot":           HotThreshold,
			"warm":          WarmThreshold,
			"crm_threshold": s.threshold,
		},
		Sources:  make(map[Source]int, len(Sources)),
		Mediums:  make(map[Medium]int, len(Mediums)),
		Services: make(map[Service]int, len(Services)),
		Bonuses: map[string]int{
			"has_phone":        BonusPhone,
			"has_message":      BonusMessage,
			"long_message":     BonusLongMessage,
			"visited_services": BonusVisitedServices,
			"visited_cases":    BonusVisitedCases,
			"read_blog":        BonusReadBlog,
			"returning_user":   BonusReturningUser,
		},
	}
	for _, src := range Sources {
		cfg.Sources[src] = src.Points()
	}
	for _, m := range Mediums {
		cfg.Mediums[m] = m.Points()
	}
	for _, svc := range Services {
		cfg.Services[svc] = svc.Points()
	}
	return cfg
}

package leads

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Flag decodes form booleans sent as true/false, 1/0, "on", "yes" or "true".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = false
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes", "y":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Submission is the raw, untrusted field bag posted by a lead form.
type Submission struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Service     string `json:"service"`
	Message     string `json:"message"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`
	Consent     Flag   `json:"consent"`
	PageURL     string `json:"page_url"`

	// FormTime is the number of seconds between form render and submit; 0 when unknown.
	FormTime int `json:"form_time"`

	// Honeypot fields are hidden from humans and must stay empty.
	Website        string `json:"website"`
	URL            string `json:"url"`
	CompanyWebsite string `json:"company_website"`
	Company        string `json:"company"`

	VisitedServices Flag `json:"visited_services"`
	VisitedCases    Flag `json:"visited_cases"`
	ReadBlog        Flag `json:"read_blog"`
	ReturningUser   Flag `json:"returning_user"`
}

// UTM holds resolved attribution parameters.
type UTM struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Engagement carries optional on-site behavior signals.
type Engagement struct {
	VisitedServices bool `json:"visited_services"`
	VisitedCases    bool `json:"visited_cases"`
	ReadBlog        bool `json:"read_blog"`
	ReturningUser   bool `json:"returning_user"`
}

// Status is the sales lifecycle state of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusClosed    Status = "closed"
	StatusLost      Status = "lost"
)

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusNew, StatusContacted, StatusQualified, StatusClosed, StatusLost:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Origin records which inbound surface created the lead.
const (
	OriginForm   = "form"
	OriginZapier = "zapier"
)

// Lead is a persisted, validated and scored submission.
type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Service      string     `json:"service"`
	Message      string     `json:"message,omitempty"`
	PageURL      string     `json:"page_url,omitempty"`
	UTM          UTM        `json:"utm"`
	Engagement   Engagement `json:"engagement"`
	Status       Status     `json:"status"`
	QualityScore int        `json:"quality_score"`
	Score        int        `json:"score"`
	ScoreLabel   string     `json:"score_label"`
	Warnings     []string   `json:"warnings,omitempty"`
	DuplicateOf  string     `json:"duplicate_of,omitempty"`
	Origin       string     `json:"origin"`
	CRMSynced    bool       `json:"crm_synced"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateLeadRequest carries validated, normalized data into a repository.
type CreateLeadRequest struct {
	Name         string
	Email        string
	Phone        string
	Service      string
	Message      string
	PageURL      string
	UTM          UTM
	Engagement   Engagement
	QualityScore int
	Score        int
	ScoreLabel   string
	Warnings     []string
	DuplicateOf  string
	Origin       string
}

// Validate checks the fields every repository requires.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" {
		return ErrMissingEmail
	}
	return nil
}

// NewCreateRequest builds a repository request from a normalized submission.
func NewCreateRequest(data Submission, qualityScore int, warnings []string) *CreateLeadRequest {
	return &CreateLeadRequest{
		Name:    data.Name,
		Email:   data.Email,
		Phone:   data.Phone,
		Service: data.Service,
		Message: data.Message,
		PageURL: data.PageURL,
		UTM: UTM{
			Source:   data.UTMSource,
			Medium:   data.UTMMedium,
			Campaign: data.UTMCampaign,
			Term:     data.UTMTerm,
			Content:  data.UTMContent,
		},
		Engagement: Engagement{
			VisitedServices: bool(data.VisitedServices),
			VisitedCases:    bool(data.VisitedCases),
			ReadBlog:        bool(data.ReadBlog),
			ReturningUser:   bool(data.ReturningUser),
		},
		QualityScore: qualityScore,
		Warnings:     append([]string(nil), warnings...),
	}
}

func (r *CreateLeadRequest) toLead(id string, now time.Time) *Lead {
	origin := r.Origin
	if origin == "" {
		origin = OriginForm
	}
	return &Lead{
		ID:           id,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Service:      r.Service,
		Message:      r.Message,
		PageURL:      r.PageURL,
		UTM:          r.UTM,
		Engagement:   r.Engagement,
		Status:       StatusNew,
		QualityScore: r.QualityScore,
		Score:        r.Score,
		ScoreLabel:   r.ScoreLabel,
		Warnings:     append([]string(nil), r.Warnings...),
		DuplicateOf:  r.DuplicateOf,
		Origin:       origin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Subscriber is a newsletter subscription.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	UTM       UTM       `json:"utm"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscribeRequest is the normalized newsletter payload.
type SubscribeRequest struct {
	Email       string   `json:"email"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	PageURL     string   `json:"page_url"`
	UTMSource   string   `json:"utm_source"`
	UTMMedium   string   `json:"utm_medium"`
	UTMCampaign string   `json:"utm_campaign"`
}

// MarshalEngagement encodes engagement signals for a jsonb column.
func MarshalEngagement(e Engagement) []byte {
	data, _ := json.Marshal(e)
	return data
}

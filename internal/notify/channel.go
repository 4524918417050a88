package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/medici-leads/internal/leads"
)

// DefaultChannelTimeout bounds every outbound channel call.
const DefaultChannelTimeout = 10 * time.Second

// ErrNotConfigured is returned by channels missing credentials.
var ErrNotConfigured = errors.New("notify: channel not configured")

// Channel delivers a lead summary to operators.
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, lead *leads.Lead) error
}

// Result is the outcome of one channel send.
type Result struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultChannelTimeout}
}

// adminLeadURL links to the lead in the admin UI when a site URL is known.
func adminLeadURL(siteURL, leadID string) string {
	if siteURL == "" || leadID == "" {
		return ""
	}
	return strings.TrimRight(siteURL, "/") + "/admin/leads/" + leadID
}

// Row is the flat lead record written to spreadsheets.
type Row struct {
	LeadID      string `json:"lead_id"`
	Date        string `json:"date"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Service     string `json:"service"`
	Message     string `json:"message"`
	PageURL     string `json:"page_url"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`
	Status      string `json:"status"`
}

// RowFor flattens a lead. New rows always start in status "new".
func RowFor(lead *leads.Lead) Row {
	created := lead.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return Row{
		LeadID:      lead.ID,
		Date:        created.UTC().Format("2006-01-02 15:04:05"),
		Name:        lead.Name,
		Email:       lead.Email,
		Phone:       lead.Phone,
		Service:     lead.Service,
		Message:     lead.Message,
		PageURL:     lead.PageURL,
		UTMSource:   lead.UTM.Source,
		UTMMedium:   lead.UTM.Medium,
		UTMCampaign: lead.UTM.Campaign,
		UTMTerm:     lead.UTM.Term,
		UTMContent:  lead.UTM.Content,
		Status:      string(leads.StatusNew),
	}
}

// Values orders the row for a spreadsheet append.
func (r Row) Values() []any {
	return []any{
		r.LeadID, r.Date, r.Name, r.Email, r.Phone, r.Service, r.Message, r.PageURL,
		r.UTMSource, r.UTMMedium, r.UTMCampaign, r.UTMTerm, r.UTMContent, r.Status,
	}
}

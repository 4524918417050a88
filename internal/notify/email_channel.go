package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/wolfman30/medici-leads/internal/leads"
	"github.com/wolfman30/medici-leads/internal/scoring"
)

var emailHTML = htmltemplate.Must(htmltemplate.New("lead_html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <h2>New consultation request</h2>
  <p><strong>{{.LabelText}}</strong> (score {{.Lead.Score}})</p>
  <table cellpadding="6">
    <tr><td>Name</td><td>{{.Lead.Name}}</td></tr>
    <tr><td>Email</td><td>{{.Lead.Email}}</td></tr>
    {{- if .Lead.Phone}}<tr><td>Phone</td><td>{{.Lead.Phone}}</td></tr>{{end}}
    <tr><td>Service</td><td>{{.Lead.Service}}</td></tr>
    {{- if .Lead.Message}}<tr><td>Message</td><td>{{.Lead.Message}}</td></tr>{{end}}
    {{- if .Lead.PageURL}}<tr><td>Page</td><td>{{.Lead.PageURL}}</td></tr>{{end}}
    <tr><td>UTM</td><td>{{.Lead.UTM.Source}} / {{.Lead.UTM.Medium}}{{if .Lead.UTM.Campaign}} / {{.Lead.UTM.Campaign}}{{end}}</td></tr>
  </table>
  {{- if .AdminURL}}
  <p><a href="{{.AdminURL}}">Open in admin</a></p>
  {{- end}}
</body>
</html>`))

var emailText = template.Must(template.New("lead_text").Parse(`New consultation request
{{.LabelText}} (score {{.Lead.Score}})

Name: {{.Lead.Name}}
Email: {{.Lead.Email}}
{{- if .Lead.Phone}}
Phone: {{.Lead.Phone}}{{end}}
Service: {{.Lead.Service}}
{{- if .Lead.Message}}
Message: {{.Lead.Message}}{{end}}
UTM: {{.Lead.UTM.Source}} / {{.Lead.UTM.Medium}}
{{- if .AdminURL}}

{{.AdminURL}}{{end}}
`))

type emailView struct {
	Lead      *leads.Lead
	LabelText string
	AdminURL  string
}

// EmailChannel mails the operator a summary of each lead.
type EmailChannel struct {
	sender   EmailSender
	to       string
	siteName string
	siteURL  string
}

func NewEmailChannel(sender EmailSender, to, siteName, siteURL string) *EmailChannel {
	if siteName == "" {
		siteName = "Medici"
	}
	return &EmailChannel{sender: sender, to: to, siteName: siteName, siteURL: siteURL}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Configured() bool { return c.sender != nil && c.to != "" }

func (c *EmailChannel) Send(ctx context.Context, lead *leads.Lead) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	msg, err := c.render(lead)
	if err != nil {
		return err
	}
	return c.sender.Send(ctx, msg)
}

func (c *EmailChannel) render(lead *leads.Lead) (EmailMessage, error) {
	view := emailView{
		Lead:      lead,
		LabelText: scoring.Label(lead.ScoreLabel).Text(),
		AdminURL:  adminLeadURL(c.siteURL, lead.ID),
	}
	var html, text bytes.Buffer
	if err := emailHTML.Execute(&html, view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email html: %w", err)
	}
	if err := emailText.Execute(&text, view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email text: %w", err)
	}
	name := lead.Name
	if name == "" {
		name = "Unnamed"
	}
	msg := EmailMessage{
		To:      c.to,
		Subject: fmt.Sprintf("[%s] New lead - %s (%s)", c.siteName, name, view.LabelText),
		Body:    text.String(),
		HTML:    html.String(),

		Category:   "new_lead",
		LeadID:     lead.ID,
		ScoreLabel: lead.ScoreLabel,
	}
	if leads.IsValidEmail(lead.Email) {
		msg.ReplyTo = lead.Email
	}
	return msg, nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/medici-leads/internal/leads"
)

// SheetsWebhookChannel posts rows to a Google Apps Script web app.
type SheetsWebhookChannel struct {
	url    string
	client *http.Client
}

func NewSheetsWebhookChannel(url string, client *http.Client) *SheetsWebhookChannel {
	return &SheetsWebhookChannel{url: url, client: defaultClient(client)}
}

func (c *SheetsWebhookChannel) Name() string { return "sheets" }

func (c *SheetsWebhookChannel) Configured() bool { return c.url != "" }

func (c *SheetsWebhookChannel) Send(ctx context.Context, lead *leads.Lead) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(RowFor(lead))
	if err != nil {
		return fmt.Errorf("notify: marshal sheet row: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultChannelTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build sheets request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sheets request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: sheets returned status %d", resp.StatusCode)
	}
	return nil
}

// SheetsAPIChannel appends rows through the Sheets v4 API.
type SheetsAPIChannel struct {
	svc           *sheets.Service
	spreadsheetID string
	writeRange    string
}

// NewSheetsAPIChannel builds the Sheets client from the given options,
// typically option.WithCredentialsFile.
func NewSheetsAPIChannel(ctx context.Context, spreadsheetID, writeRange string, opts ...option.ClientOption) (*SheetsAPIChannel, error) {
	if writeRange == "" {
		writeRange = "Leads!A:N"
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: sheets client: %w", err)
	}
	return &SheetsAPIChannel{svc: svc, spreadsheetID: spreadsheetID, writeRange: writeRange}, nil
}

func (c *SheetsAPIChannel) Name() string { return "sheets_api" }

func (c *SheetsAPIChannel) Configured() bool { return c.svc != nil && c.spreadsheetID != "" }

func (c *SheetsAPIChannel) Send(ctx context.Context, lead *leads.Lead) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultChannelTimeout)
	defer cancel()

	vr := &sheets.ValueRange{Values: [][]any{RowFor(lead).Values()}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.writeRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("notify: sheets append: %w", err)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/medici-leads/internal/leads"
)

const telegramAPIBase = "https://api.telegram.org"

// Legacy Markdown parse mode only treats these as entity delimiters.
var markdownEscaper = strings.NewReplacer(
	`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`,
)

// EscapeMarkdown backslash-escapes Telegram Markdown control characters.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// TelegramChannel posts lead summaries to a chat through the Bot API.
type TelegramChannel struct {
	token   string
	chatID  string
	siteURL string
	baseURL string
	client  *http.Client
}

func NewTelegramChannel(token, chatID, siteURL string, client *http.Client) *TelegramChannel {
	return &TelegramChannel{
		token:   token,
		chatID:  chatID,
		siteURL: siteURL,
		baseURL: telegramAPIBase,
		client:  defaultClient(client),
	}
}

// WithBaseURL points the channel at a different Bot API host.
func (c *TelegramChannel) WithBaseURL(u string) *TelegramChannel {
	if u != "" {
		c.baseURL = strings.TrimRight(u, "/")
	}
	return c
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Configured() bool { return c.token != "" && c.chatID != "" }

func (c *TelegramChannel) Send(ctx context.Context, lead *leads.Lead) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(map[string]string{
		"chat_id":    c.chatID,
		"text":       c.message(lead),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telegram message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultChannelTimeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; never surface it.
		return fmt.Errorf("notify: telegram request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *TelegramChannel) message(lead *leads.Lead) string {
	lines := []string{"*New consultation request*", ""}
	if lead.ID != "" {
		lines = append(lines, "*Lead* "+EscapeMarkdown(lead.ID), "")
	}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("*%s:* %s", label, EscapeMarkdown(value)))
		}
	}
	add("Name", lead.Name)
	add("Email", lead.Email)
	add("Phone", lead.Phone)
	add("Service", lead.Service)
	if lead.Message != "" {
		lines = append(lines, "", "*Message:*", EscapeMarkdown(lead.Message))
	}
	if lead.UTM.Source != "" || lead.UTM.Campaign != "" {
		lines = append(lines, "", "*UTM:*")
		if lead.UTM.Source != "" {
			lines = append(lines, "Source: "+EscapeMarkdown(lead.UTM.Source))
		}
		if lead.UTM.Medium != "" {
			lines = append(lines, "Medium: "+EscapeMarkdown(lead.UTM.Medium))
		}
		if lead.UTM.Campaign != "" {
			lines = append(lines, "Campaign: "+EscapeMarkdown(lead.UTM.Campaign))
		}
	}
	if u := adminLeadURL(c.siteURL, lead.ID); u != "" {
		lines = append(lines, "", fmt.Sprintf("[Open in admin](%s)", u))
	}
	return strings.Join(lines, "\n")
}

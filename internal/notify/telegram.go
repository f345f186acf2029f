package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const (
	telegramAPIBase = "https://api.telegram.org"

	// telegramMaxText is the Bot API limit for sendMessage text.
	telegramMaxText = 4096
)

// TelegramSender delivers freight alerts via the Telegram Bot API. Text is
// sent as HTML so route codes and error messages need no Markdown escaping.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID with a 10-second HTTP timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// telegramText renders a bold title over a preformatted opportunity list.
func telegramText(title, message string) string {
	text := "<b>" + html.EscapeString(title) + "</b>"
	if message != "" {
		text += "\n<pre>" + html.EscapeString(message) + "</pre>"
	}
	if len(text) <= telegramMaxText {
		return text
	}
	// Truncating inside an entity or tag would be rejected, so fall back to
	// the title alone.
	return "<b>" + html.EscapeString(truncate(title, telegramMaxText-16)) + "</b>"
}

// Send posts the alert to sendMessage. A 2xx reply with ok=false is still an
// error.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(title, message),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var reply telegramResponse
	decodeErr := json.Unmarshal(respBody, &reply)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && reply.Description != "" {
			return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}
	if decodeErr == nil && !reply.OK {
		return fmt.Errorf("telegram: rejected: %s", reply.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

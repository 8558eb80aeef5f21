package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
)

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  defaultHTTPClient(),
	}
}

// Send renders a as HTML and posts it with sendMessage.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>\n%s", strings.ToUpper(string(a.Severity)), html.EscapeString(a.Title), html.EscapeString(a.Message))

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n<i>%s</i>: %s", html.EscapeString(k), html.EscapeString(a.Fields[k]))
	}

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "HTML",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	return postJSON(ctx, t.client, "telegram", url, payload)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

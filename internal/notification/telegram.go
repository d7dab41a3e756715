package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramClient is a thin wrapper over the Telegram Bot API: sendMessage
// for delivery and getUpdates for the command loop.
type TelegramClient struct {
	apiBase string
	token   string
	client  *http.Client
}

// NewTelegramClient creates a client for the given bot token (from @BotFather).
func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{
		apiBase: "https://api.telegram.org",
		token:   token,
		client: &http.Client{
			Timeout: 35 * time.Second, // above the long-poll timeout
		},
	}
}

// SendMessage delivers a MarkdownV2 message to a chat.
func (t *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := t.post(ctx, "sendMessage", body, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram: sendMessage rejected: %s", out.Description)
	}
	return nil
}

// Update is one incoming Telegram update carrying a message.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// GetUpdates long-polls for updates after offset.
func (t *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"offset":  offset,
		"timeout": timeoutSec,
	})

	var out struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := t.post(ctx, "getUpdates", body, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram: getUpdates rejected")
	}
	return out.Result, nil
}

func (t *TelegramClient) post(ctx context.Context, method string, body []byte, out interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("telegram: %s: unexpected status %d", method, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// TelegramNotifier sends operational alerts to the admin chat.
type TelegramNotifier struct {
	client *TelegramClient
	chatID int64
}

// NewTelegramNotifier creates an admin-alert notifier.
func NewTelegramNotifier(client *TelegramClient, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{client: client, chatID: chatID}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	return t.client.SendMessage(ctx, t.chatID, text)
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}

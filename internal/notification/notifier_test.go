package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type sentMessage struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// alertServer fakes the Bot API sendMessage endpoint and records the last
// message it accepted.
func alertServer(t *testing.T, reply string) (*TelegramClient, *sentMessage) {
	t.Helper()
	last := &sentMessage{}
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(reply))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewTelegramClient("TOKEN")
	client.apiBase = srv.URL
	return client, last
}

func TestTelegramNotifier_SendsToAdminChat(t *testing.T) {
	client, last := alertServer(t, `{"ok":true}`)
	n := NewTelegramNotifier(client, 42)

	err := n.Send(context.Background(), Alert{
		Level:   AlertCritical,
		Title:   "Store failure",
		Message: "save open set: disk full",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if last.ChatID != 42 {
		t.Errorf("chat_id = %d, want 42", last.ChatID)
	}
	if last.ParseMode != "MarkdownV2" {
		t.Errorf("parse_mode = %s, want MarkdownV2", last.ParseMode)
	}
	if !strings.Contains(last.Text, "Store failure") {
		t.Errorf("alert text missing title:\n%s", last.Text)
	}
	if !strings.Contains(last.Text, "disk full") {
		t.Errorf("alert text missing message:\n%s", last.Text)
	}
}

func TestTelegramNotifier_LevelEmoji(t *testing.T) {
	cases := map[AlertLevel]string{
		AlertInfo:     "ℹ️",
		AlertWarning:  "⚠️",
		AlertCritical: "🚨",
	}
	for level, emoji := range cases {
		client, last := alertServer(t, `{"ok":true}`)
		n := NewTelegramNotifier(client, 42)

		if err := n.Send(context.Background(), Alert{Level: level, Title: "t", Message: "m"}); err != nil {
			t.Fatalf("%s: Send: %v", level, err)
		}
		if !strings.HasPrefix(last.Text, emoji) {
			t.Errorf("%s alert should start with %s:\n%s", level, emoji, last.Text)
		}
	}
}

func TestTelegramNotifier_SurfacesRejection(t *testing.T) {
	client, _ := alertServer(t, `{"ok":false,"description":"chat not found"}`)
	n := NewTelegramNotifier(client, 42)

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"})
	if err == nil {
		t.Fatal("expected error on rejected sendMessage")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry the API description: %v", err)
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Send(context.Background(), Alert{
		Level: AlertWarning, Title: "t", Message: "m",
	}); err != nil {
		t.Fatalf("LogNotifier.Send: %v", err)
	}
}

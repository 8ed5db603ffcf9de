package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestTelegram(t *testing.T, cfg config.TelegramConfig, rt roundTripFunc) *Telegram {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	tg, err := NewTelegram(cfg, logg, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	return tg
}

func baseConfig() config.TelegramConfig {
	return config.TelegramConfig{
		BotToken:    "token-1",
		ChatIDs:     []string{"111", "222"},
		DebugChatID: "999",
		BaseURL:     "https://api.telegram.org",
		HTTPTimeout: time.Second,
	}
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}
}

func TestSendBroadcastsToEveryChat(t *testing.T) {
	var got []sendMessageRequest
	tg := newTestTelegram(t, baseConfig(), func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/bottoken-1/sendMessage" {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		var body sendMessageRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		got = append(got, body)
		return okResponse(), nil
	})

	if err := tg.Send(context.Background(), "<b>hello</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].ChatID != "111" || got[1].ChatID != "222" {
		t.Fatalf("unexpected recipients: %+v", got)
	}
	for _, body := range got {
		if body.ParseMode != "HTML" {
			t.Fatalf("expected HTML parse mode, got %q", body.ParseMode)
		}
		if body.Text != "<b>hello</b>" {
			t.Fatalf("unexpected text %q", body.Text)
		}
	}
}

func TestSendAttemptsRemainingChatsAfterFailure(t *testing.T) {
	var delivered []string
	tg := newTestTelegram(t, baseConfig(), func(req *http.Request) (*http.Response, error) {
		var body sendMessageRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ChatID == "111" {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader(`{"ok":false}`)),
			}, nil
		}
		delivered = append(delivered, body.ChatID)
		return okResponse(), nil
	})

	err := tg.Send(context.Background(), "text")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "chat 111") {
		t.Fatalf("error should name the failed chat: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "222" {
		t.Fatalf("second chat should still be attempted: %v", delivered)
	}
}

func TestSendDebugTargetsDebugChatOnly(t *testing.T) {
	var got []string
	tg := newTestTelegram(t, baseConfig(), func(req *http.Request) (*http.Response, error) {
		var body sendMessageRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		got = append(got, body.ChatID)
		return okResponse(), nil
	})

	if err := tg.SendDebug(context.Background(), "diagnostic"); err != nil {
		t.Fatalf("send debug: %v", err)
	}
	if len(got) != 1 || got[0] != "999" {
		t.Fatalf("expected single delivery to debug chat, got %v", got)
	}
}

func TestNewTelegramValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	cfg := baseConfig()
	cfg.BotToken = ""
	if _, err := NewTelegram(cfg, logg); err == nil {
		t.Fatal("expected error for missing bot token")
	}

	cfg = baseConfig()
	cfg.ChatIDs = nil
	if _, err := NewTelegram(cfg, logg); err == nil {
		t.Fatal("expected error for empty chat id list")
	}

	cfg = baseConfig()
	cfg.DebugChatID = ""
	if _, err := NewTelegram(cfg, logg); err == nil {
		t.Fatal("expected error for missing debug chat id")
	}
}

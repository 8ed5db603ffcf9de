package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
	"go.uber.org/multierr"
)

const responseBodyReadLimit = 1024

// Telegram pushes messages through the Bot API. Broadcast recipients and the
// diagnostic recipient are fixed at construction.
type Telegram struct {
	httpClient  *http.Client
	logg        *logger.Logger
	baseURL     string
	botToken    string
	chatIDs     []string
	debugChatID string
}

// TelegramOption overrides a constructor default.
type TelegramOption func(*Telegram)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.httpClient = client
	}
}

// NewTelegram builds the notifier from configuration.
func NewTelegram(cfg config.TelegramConfig, logg *logger.Logger, opts ...TelegramOption) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("telegram chat id list is empty")
	}
	if cfg.DebugChatID == "" {
		return nil, errors.New("telegram debug chat id is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	t := &Telegram{
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		logg:        logg,
		baseURL:     cfg.BaseURL,
		botToken:    cfg.BotToken,
		chatIDs:     cfg.ChatIDs,
		debugChatID: cfg.DebugChatID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Send broadcasts one message to every configured recipient. Each recipient
// is attempted even when an earlier one fails; the combined error is returned
// for observability only.
func (t *Telegram) Send(ctx context.Context, text string) error {
	var errs error
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			t.logg.Error(ctx, fmt.Sprintf("telegram delivery to chat %s failed", chatID), err)
			errs = multierr.Append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errs
}

// SendDebug delivers a diagnostic message to the fixed debug recipient only.
func (t *Telegram) SendDebug(ctx context.Context, text string) error {
	return t.sendMessage(ctx, t.debugChatID, text)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) sendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "telegram request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("telegram responded %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

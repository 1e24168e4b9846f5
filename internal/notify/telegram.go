package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram sends messages to a fixed chat via the Bot API.
type Telegram struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

type TelegramOption func(*Telegram)

// WithTelegramBaseURL overrides the API host, used by tests.
func WithTelegramBaseURL(url string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.httpClient = client
	}
}

func NewTelegram(botToken, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    defaultTelegramBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Notify sends one Markdown message. No retries: the dispatch layer treats
// every failure as log-and-forget.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

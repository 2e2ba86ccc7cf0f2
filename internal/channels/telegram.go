package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends replies through the Telegram Bot API
type TelegramNotifier struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewTelegramNotifier creates a Telegram sink for the given bot token
func NewTelegramNotifier(token, baseURL string, log zerolog.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = defaultTelegramURL
	}
	return &TelegramNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("client", "telegram").Logger(),
	}
}

// Name implements Notifier
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Notifier. msg.To is the chat id.
func (n *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": msg.To,
		"text":    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result telegramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}
	if !result.OK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, result.Description)
	}
	return nil
}

package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTwilioURL = "https://api.twilio.com"

// TwilioNotifier sends WhatsApp or SMS replies through the Twilio REST API
type TwilioNotifier struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewTwilioNotifier creates a Twilio sink. from is used when a message does
// not carry its own sender.
func NewTwilioNotifier(accountSID, authToken, from, baseURL string, log zerolog.Logger) *TwilioNotifier {
	if baseURL == "" {
		baseURL = defaultTwilioURL
	}
	return &TwilioNotifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("client", "twilio").Logger(),
	}
}

// Name implements Notifier
func (n *TwilioNotifier) Name() string {
	return "twilio"
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send implements Notifier
func (n *TwilioNotifier) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = n.from
	}
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", from)
	form.Set("Body", msg.Text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var apiErr twilioError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("twilio API error %d (status %d): %s", apiErr.Code, resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("twilio API error (status %d): %s", resp.StatusCode, string(body))
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sos-beacon/internal/logging"
)

// Notifier delivers one text message and returns the provider message id.
type Notifier interface {
	Notify(ctx context.Context, to, body string) (string, error)
}

// LogNotifier only logs messages; used for dry runs.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logging.Module("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, to, body string) (string, error) {
	sid := "log-" + uuid.NewString()
	n.log.Info().Str("to", to).Str("sid", sid).Str("body", body).Msg("notification (dry run)")
	return sid, nil
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioNotifier sends SMS through the Twilio Messages REST API.
type TwilioNotifier struct {
	cfg    TwilioConfig
	client *http.Client
}

func NewTwilioNotifier(cfg TwilioConfig) *TwilioNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TwilioNotifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *TwilioNotifier) Notify(ctx context.Context, to, body string) (string, error) {
	endpoint := strings.TrimRight(n.cfg.BaseURL, "/") +
		"/2010-04-01/Accounts/" + url.PathEscape(n.cfg.AccountSID) + "/Messages.json"
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", n.cfg.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(n.cfg.AccountSID, n.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	var msg twilioMessage
	dec := json.NewDecoder(io.LimitReader(resp.Body, 64<<10))
	decodeErr := dec.Decode(&msg)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && msg.Message != "" {
			return "", fmt.Errorf("twilio HTTP %d: code %d: %s", resp.StatusCode, msg.Code, msg.Message)
		}
		return "", fmt.Errorf("twilio HTTP %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("twilio response: %w", decodeErr)
	}
	if msg.SID == "" {
		return "", fmt.Errorf("twilio response has no sid")
	}
	return msg.SID, nil
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

var twilioTracer = otel.Tracer("jewelry.internal.notify.twilio")

// TwilioNotifier posts WhatsApp (or SMS) messages through Twilio's REST API.
// A failed attempt is returned as-is; reminders are best effort.
type TwilioNotifier struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioNotifier builds a notifier. baseURL defaults to the public API.
func NewTwilioNotifier(accountSID, authToken, from, baseURL string, logger *logging.Logger) *TwilioNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioNotifier{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Notifier = (*TwilioNotifier)(nil)

func (n *TwilioNotifier) Send(ctx context.Context, to, body string) error {
	if n.accountSID == "" || n.authToken == "" {
		return errors.New("notify: twilio credentials missing")
	}
	if n.from == "" {
		return errors.New("notify: from required")
	}
	if to == "" {
		return ErrRecipientRequired
	}
	if strings.TrimSpace(body) == "" {
		return ErrBodyRequired
	}

	ctx, span := twilioTracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("jewelry.to", to))

	// WhatsApp senders can only reach WhatsApp recipients.
	if strings.HasPrefix(n.from, "whatsapp:") && !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", n.from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.SetBasicAuth(n.accountSID, n.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, raw))
		span.RecordError(err)
		return err
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &parsed)
	n.logger.Info("twilio message sent", "to", to, "sid", parsed.SID, "status", parsed.Status)
	return nil
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

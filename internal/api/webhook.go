package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/jewelry-appointment-bot/internal/bot"
	"github.com/hackgods/jewelry-appointment-bot/internal/metrics"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

type webhookConfig struct {
	bot        CommandHandler
	authToken  string
	webhookURL string
	metrics    *metrics.BotMetrics
	logger     *logging.Logger
}

// twilioWebhookHandler answers Twilio's inbound message callback with TwiML.
// An empty Body gets an empty response so Twilio sends nothing back.
func twilioWebhookHandler(cfg webhookConfig) http.HandlerFunc {
	verify := cfg.authToken != "" && cfg.webhookURL != ""

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { cfg.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_form", "could not parse form body")
			return
		}

		if verify && !ValidateTwilioSignature(r, cfg.authToken, cfg.webhookURL) {
			cfg.logger.Warn("rejected webhook with bad signature",
				"request_id", GetRequestID(r.Context()),
				"from", r.PostForm.Get("From"),
			)
			writeError(w, http.StatusForbidden, "invalid_signature", "X-Twilio-Signature mismatch")
			return
		}

		body := strings.TrimSpace(r.PostForm.Get("Body"))
		if body == "" {
			writeTwiML(w, "")
			return
		}

		reply := cfg.bot.Handle(r.Context(), bot.Message{
			Body:     body,
			From:     r.PostForm.Get("From"),
			MediaURL: r.PostForm.Get("MediaUrl0"),
		})
		writeTwiML(w, reply)
	}
}

// ValidateTwilioSignature checks X-Twilio-Signature: base64 HMAC-SHA1 of the
// public webhook URL followed by every POST param, keys sorted.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}

	expected := SignTwilioRequest(authToken, webhookURL, r.PostForm)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignTwilioRequest computes the X-Twilio-Signature value for a form post,
// the way Twilio does when it calls the webhook.
func SignTwilioRequest(authToken, webhookURL string, params url.Values) string {
	return computeSignature(buildSignaturePayload(webhookURL, params), authToken)
}

func buildSignaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/jewelry-appointment-bot/internal/bot"
	"github.com/hackgods/jewelry-appointment-bot/internal/metrics"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

// CommandHandler turns one inbound chat message into one reply.
type CommandHandler interface {
	Handle(ctx context.Context, msg bot.Message) string
}

type RouterConfig struct {
	Bot      CommandHandler
	Postgres Pinger
	Redis    Pinger
	Env      string
	Version  string

	Metrics  *metrics.BotMetrics
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger

	// Signature checks run only when both are set.
	TwilioAuthToken  string
	TwilioWebhookURL string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/webhooks/twilio", twilioWebhookHandler(webhookConfig{
		bot:        cfg.Bot,
		authToken:  cfg.TwilioAuthToken,
		webhookURL: cfg.TwilioWebhookURL,
		metrics:    cfg.Metrics,
		logger:     logger,
	}))

	return r
}

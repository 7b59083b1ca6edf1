package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/jewelry-appointment-bot/internal/api"
	"github.com/hackgods/jewelry-appointment-bot/internal/appointment"
	"github.com/hackgods/jewelry-appointment-bot/internal/bot"
	"github.com/hackgods/jewelry-appointment-bot/internal/clock"
	"github.com/hackgods/jewelry-appointment-bot/internal/config"
	"github.com/hackgods/jewelry-appointment-bot/internal/db"
	"github.com/hackgods/jewelry-appointment-bot/internal/metrics"
	"github.com/hackgods/jewelry-appointment-bot/internal/notify"
	redisclient "github.com/hackgods/jewelry-appointment-bot/internal/redis"
	"github.com/hackgods/jewelry-appointment-bot/internal/reminder"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "api-server", "env", cfg.Env)
	logger.Info("api-server starting up", "http_port", cfg.HTTPPort, "storage", cfg.StorageDriver, "timezone", cfg.Timezone)

	if err := run(cfg, logger); err != nil {
		logger.Error("api-server stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("api-server stopped")
}

func run(cfg config.Config, logger *logging.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk, err := clock.Load(cfg.Timezone)
	if err != nil {
		return err
	}

	routerCfg := api.RouterConfig{
		Env:              cfg.Env,
		Version:          version,
		Logger:           logger,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioWebhookURL: cfg.TwilioWebhookURL,
	}

	var (
		repo   appointment.Repository
		locker redisclient.Locker
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			return err
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "err", err)
			}
		}()
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)

		repo = appointment.NewPgRepository(pgPool)
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, logger)
		routerCfg.Postgres = pgPool
		routerCfg.Redis = api.RedisPinger(rdb)
	default:
		logger.Warn("using in-memory storage, bookings are lost on restart")
		repo = appointment.NewMemoryRepository()
		locker = redisclient.NewLocalSlotLocker()
	}

	var notifier notify.Notifier
	if cfg.TwilioEnabled() {
		notifier = notify.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.TwilioAPIBaseURL, logger)
	} else {
		logger.Warn("twilio credentials missing, reminders will only be logged")
		notifier = notify.NewLogNotifier(logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	botMetrics := metrics.NewBotMetrics(reg)
	routerCfg.Metrics = botMetrics
	routerCfg.Gatherer = reg

	scheduler := reminder.NewScheduler(repo, notifier, clk, reminder.Config{
		Lead:            cfg.ReminderLead,
		StaleAfter:      cfg.ReminderStaleAfter,
		SendTimeout:     cfg.ReminderSendTimeout,
		ExtraRecipients: cfg.ReminderExtraRecipients,
	}, logger, botMetrics)
	defer scheduler.Stop()

	restoreCtx, cancelRestore := context.WithTimeout(rootCtx, 10*time.Second)
	restored, err := scheduler.Restore(restoreCtx)
	cancelRestore()
	if err != nil {
		// Bookings still work; only reminders for existing appointments are missing.
		logger.Error("restore reminders failed", "err", err)
	} else {
		logger.Info("reminders restored", "count", restored)
	}

	svc := appointment.NewService(repo, locker, scheduler, logger)
	routerCfg.Bot = bot.NewInterpreter(svc, clk, logger, botMetrics)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           otelhttp.NewHandler(api.NewRouter(routerCfg), "api-server"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

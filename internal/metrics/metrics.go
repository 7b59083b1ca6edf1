package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the WhatsApp bot and reminders.
type BotMetrics struct {
	commandsTotal  *prometheus.CounterVec
	remindersTotal *prometheus.CounterVec
	pendingTimers  prometheus.Gauge
	webhookLatency prometheus.Histogram
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Inbound bot commands by command and outcome",
		}, []string{"command", "outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelry",
			Subsystem: "reminders",
			Name:      "events_total",
			Help:      "Reminder lifecycle events (scheduled, skipped, cancelled, sent, failed)",
		}, []string{"event"}),
		pendingTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jewelry",
			Subsystem: "reminders",
			Name:      "pending",
			Help:      "Reminder timers currently registered",
		}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jewelry",
			Subsystem: "bot",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commandsTotal, m.remindersTotal, m.pendingTimers, m.webhookLatency)
	return m
}

func (m *BotMetrics) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}

func (m *BotMetrics) ObserveReminder(event string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(event).Inc()
}

func (m *BotMetrics) SetPendingReminders(n int) {
	if m == nil {
		return
	}
	m.pendingTimers.Set(float64(n))
}

func (m *BotMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

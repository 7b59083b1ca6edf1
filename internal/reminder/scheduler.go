// Package reminder owns the in-process registry of reminder timers.
//
// Each booked appointment gets at most one pending timer that fires a fixed
// lead time before the slot starts. Timers are not persisted; Restore
// rebuilds them for today and tomorrow after a restart.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hackgods/jewelry-appointment-bot/internal/appointment"
	"github.com/hackgods/jewelry-appointment-bot/internal/clock"
	"github.com/hackgods/jewelry-appointment-bot/internal/metrics"
	"github.com/hackgods/jewelry-appointment-bot/internal/notify"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

// Lister is the slice of the appointment store needed for recovery.
type Lister interface {
	ListUpcoming(ctx context.Context, dates []string) ([]appointment.Appointment, error)
}

type Config struct {
	Lead            time.Duration
	StaleAfter      time.Duration
	SendTimeout     time.Duration
	ExtraRecipients []string
}

func (c Config) withDefaults() Config {
	if c.Lead <= 0 {
		c.Lead = 10 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

type entry struct {
	timer *time.Timer
	seq   uint64
}

type Scheduler struct {
	store    Lister
	notifier notify.Notifier
	clock    clock.Clock
	cfg      Config
	logger   *logging.Logger
	metrics  *metrics.BotMetrics

	mu     sync.Mutex
	timers map[int64]entry
	seq    uint64
}

func NewScheduler(store Lister, notifier notify.Notifier, clk clock.Clock, cfg Config, logger *logging.Logger, m *metrics.BotMetrics) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "reminder"),
		metrics:  m,
		timers:   make(map[int64]entry),
	}
}

// Schedule registers (or replaces) the reminder for appt. It reports whether
// a timer is now pending.
func (s *Scheduler) Schedule(appt appointment.Appointment, recipients []string) bool {
	start, err := slot.StartOf(appt.Date, appt.SlotIndex, s.clock.Location())
	if err != nil {
		s.logger.Error("cannot compute slot start", "appointment_id", appt.ID, "err", err)
		return false
	}
	remindAt := start.Add(-s.cfg.Lead)
	now := s.clock.Now()
	to := s.recipients(recipients)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[appt.ID]; ok {
		old.timer.Stop()
		delete(s.timers, appt.ID)
		s.metrics.ObserveReminder("replaced")
	}

	if now.Sub(remindAt) > s.cfg.StaleAfter {
		s.logger.Info("reminder skipped, booking is stale",
			"appointment_id", appt.ID, "date", appt.Date, "time", slot.DisplayTime(appt.SlotIndex),
			"remind_at", remindAt)
		s.metrics.ObserveReminder("skipped")
		s.metrics.SetPendingReminders(len(s.timers))
		return false
	}
	if len(to) == 0 {
		s.logger.Warn("reminder skipped, no recipients", "appointment_id", appt.ID)
		s.metrics.ObserveReminder("skipped")
		s.metrics.SetPendingReminders(len(s.timers))
		return false
	}

	delay := max(remindAt.Sub(now), 0)

	s.seq++
	seq := s.seq
	t := time.AfterFunc(delay, func() { s.fire(appt, to, seq) })
	s.timers[appt.ID] = entry{timer: t, seq: seq}

	s.logger.Info("reminder scheduled",
		"appointment_id", appt.ID, "remind_at", remindAt, "in", delay.Round(time.Second), "recipients", len(to))
	s.metrics.ObserveReminder("scheduled")
	s.metrics.SetPendingReminders(len(s.timers))
	return true
}

// Cancel stops the pending reminder for id. No-op when none is registered
// or it already fired.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, id)

	s.logger.Info("reminder cancelled", "appointment_id", id)
	s.metrics.ObserveReminder("cancelled")
	s.metrics.SetPendingReminders(len(s.timers))
	return true
}

// Restore re-creates reminders for today's and tomorrow's bookings.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	dates := []string{clock.Today(s.clock), clock.Tomorrow(s.clock)}
	appts, err := s.store.ListUpcoming(ctx, dates)
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}

	restored := 0
	for _, a := range appts {
		if a.CreatorNumber == "" {
			continue
		}
		if s.Schedule(a, []string{a.CreatorNumber}) {
			restored++
		}
	}

	s.logger.Info("reminders restored", "dates", dates, "found", len(appts), "scheduled", restored)
	return restored, nil
}

// Pending returns the number of registered timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer. Used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SetPendingReminders(0)
}

func (s *Scheduler) fire(appt appointment.Appointment, to []string, seq uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reminder callback panicked", "appointment_id", appt.ID, "panic", r)
			s.metrics.ObserveReminder("failed")
		}
	}()

	s.mu.Lock()
	e, ok := s.timers[appt.ID]
	if !ok || e.seq != seq {
		// Cancelled or replaced after the timer had already started.
		s.mu.Unlock()
		return
	}
	delete(s.timers, appt.ID)
	s.metrics.SetPendingReminders(len(s.timers))
	s.mu.Unlock()

	body := Message(appt)
	for _, addr := range to {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
		err := s.notifier.Send(ctx, addr, body)
		cancel()
		if err != nil {
			s.logger.Error("reminder send failed", "appointment_id", appt.ID, "to", addr, "err", err)
			s.metrics.ObserveReminder("failed")
			continue
		}
		s.logger.Info("reminder sent", "appointment_id", appt.ID, "to", addr)
		s.metrics.ObserveReminder("sent")
	}
}

func (s *Scheduler) recipients(primary []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{primary, s.cfg.ExtraRecipients} {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// Message renders the reminder text sent to staff.
func Message(a appointment.Appointment) string {
	var b strings.Builder
	b.WriteString("⏰ *Appointment Reminder*\n")
	fmt.Fprintf(&b, "👤 %s\n", a.FullName())
	fmt.Fprintf(&b, "📱 %s\n", a.Mobile)
	fmt.Fprintf(&b, "🕒 %s (%s)", slot.DisplayTime(a.SlotIndex), a.Date)
	if notes := strings.TrimSpace(a.Notes); notes != "" {
		fmt.Fprintf(&b, "\n📝 %s", notes)
	}
	return b.String()
}

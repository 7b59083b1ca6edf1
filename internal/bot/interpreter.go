// Package bot turns inbound WhatsApp text commands into appointment
// operations and a single text reply.
package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hackgods/jewelry-appointment-bot/internal/appointment"
	"github.com/hackgods/jewelry-appointment-bot/internal/clock"
	"github.com/hackgods/jewelry-appointment-bot/internal/metrics"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

// Message is one inbound chat message.
type Message struct {
	Body     string
	From     string
	MediaURL string
}

// Booker is the appointment service as seen by the bot.
type Booker interface {
	Book(ctx context.Context, n appointment.NewAppointment) (*appointment.Appointment, error)
	ClearSlot(ctx context.Context, date string, slotIndex int) (*appointment.Appointment, error)
	DaySchedule(ctx context.Context, date string) ([]appointment.Appointment, error)
}

type Interpreter struct {
	svc     Booker
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.BotMetrics
}

func NewInterpreter(svc Booker, clk clock.Clock, logger *logging.Logger, m *metrics.BotMetrics) *Interpreter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Interpreter{
		svc:     svc,
		clock:   clk,
		logger:  logger.With("component", "bot"),
		metrics: m,
	}
}

var (
	commandRe = regexp.MustCompile(`(?s)^/(\w+)\s*(.*)$`)
	dayWordRe = regexp.MustCompile(`(?i)\b(today|tomorrow)\b`)
)

// Handle never fails: every path, including panics, ends in one reply.
func (in *Interpreter) Handle(ctx context.Context, msg Message) (reply string) {
	text := strings.TrimSpace(msg.Body)
	command := "unknown"

	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("command handler panicked", "from", msg.From, "command", command, "panic", r)
			in.metrics.ObserveCommand(command, "panic")
			reply = replyServerError
		}
	}()

	in.logger.Info("inbound message", "from", msg.From, "body", text)

	m := commandRe.FindStringSubmatch(text)
	if m == nil {
		in.metrics.ObserveCommand(command, "ok")
		return unknownCommand
	}
	word, payload := strings.ToLower(m[1]), strings.TrimSpace(m[2])

	var outcome string
	switch {
	case strings.HasPrefix(word, "help"):
		command = "help"
		reply, outcome = in.help(payload)
	case word == "slots":
		command = "slots"
		reply, outcome = in.slots(ctx, payload)
	case word == "reschedule":
		command = "reschedule"
		reply, outcome = in.reschedule(ctx, payload)
	case word == "at":
		command = "book"
		reply, outcome = in.book(ctx, msg, payload, true)
	case word == "a":
		command = "book"
		reply, outcome = in.book(ctx, msg, payload, false)
	default:
		reply, outcome = unknownCommand, "ok"
	}

	in.metrics.ObserveCommand(command, outcome)
	return reply
}

func (in *Interpreter) help(payload string) (string, string) {
	topic := strings.ToLower(payload)
	if strings.Contains(topic, "appointment") || strings.Contains(topic, "slot") {
		return appointmentHelp, "ok"
	}
	return generalHelp, "ok"
}

func wantsTomorrow(text string) bool {
	for _, w := range dayWordRe.FindAllString(text, -1) {
		if strings.EqualFold(w, "tomorrow") {
			return true
		}
	}
	return false
}

func stripDayWords(text string) string {
	return strings.TrimSpace(dayWordRe.ReplaceAllString(text, ""))
}

func (in *Interpreter) targetDate(tomorrow bool) string {
	if tomorrow {
		return clock.Tomorrow(in.clock)
	}
	return clock.Today(in.clock)
}

func (in *Interpreter) slots(ctx context.Context, payload string) (string, string) {
	date := in.targetDate(wantsTomorrow(payload))

	booked, err := in.svc.DaySchedule(ctx, date)
	if err != nil {
		in.logger.Error("list slots failed", "date", date, "err", err)
		return replyDBError, "storage_error"
	}
	return slotsReply(date, booked), "ok"
}

func (in *Interpreter) reschedule(ctx context.Context, payload string) (string, string) {
	lower := strings.ToLower(payload)
	date := in.targetDate(wantsTomorrow(lower))

	idx, err := slot.ParseLoose(stripDayWords(lower))
	if err != nil {
		if errors.Is(err, slot.ErrOutsideHours) {
			return replyOutsideHours, "out_of_bounds"
		}
		return replyLooseTime, "format_error"
	}

	removed, err := in.svc.ClearSlot(ctx, date, idx)
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return nothingFoundReply(date, idx), "not_found"
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		return replyBusy, "busy"
	case err != nil:
		in.logger.Error("clear slot failed", "date", date, "slot", idx, "err", err)
		return replyDBError, "storage_error"
	}
	return clearedReply(removed), "ok"
}

func splitName(raw string) (first, last string) {
	raw = strings.TrimSpace(raw)
	first, last, _ = strings.Cut(raw, " ")
	return first, strings.TrimSpace(last)
}

func (in *Interpreter) book(ctx context.Context, msg Message, payload string, forceTomorrow bool) (string, string) {
	if !strings.Contains(payload, ",") {
		return replyCommaMissing, "format_error"
	}

	args := strings.Split(payload, ",")
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	if len(args) < 2 || args[0] == "" || args[1] == "" {
		return replyMandatory, "format_error"
	}
	if len(args) < 3 {
		return replyStrictTime, "format_error"
	}

	first, last := splitName(args[0])
	mobile := args[1]
	timeText := args[2]
	date := in.targetDate(forceTomorrow || wantsTomorrow(timeText))

	idx, err := slot.ParseStrict(stripDayWords(timeText))
	if err != nil {
		if errors.Is(err, slot.ErrOutsideHours) {
			return replyOutsideHours, "out_of_bounds"
		}
		return replyStrictTime, "format_error"
	}

	appt, err := in.svc.Book(ctx, appointment.NewAppointment{
		FirstName:     first,
		LastName:      last,
		Mobile:        mobile,
		Date:          date,
		SlotIndex:     idx,
		CreatorNumber: msg.From,
		Notes:         strings.Join(args[3:], ", "),
	})
	switch {
	case errors.Is(err, appointment.ErrSlotTaken):
		return slotTakenReply(date, idx), "slot_taken"
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		return replyBusy, "busy"
	case errors.Is(err, appointment.ErrInvalidRequest):
		return replyMandatory, "format_error"
	case err != nil:
		in.logger.Error("booking failed", "date", date, "slot", idx, "err", err)
		return replyDBError, "storage_error"
	}

	in.logger.Info("appointment booked", "appointment_id", appt.ID, "date", appt.Date, "time", appt.Time, "from", msg.From)
	return bookedReply(appt), "ok"
}

package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/hackgods/jewelry-appointment-bot/internal/redis"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAppointmentCleared = "APPOINTMENT_CLEARED"
)

var (
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrInvalidRequest  = errors.New("invalid booking request")
)

// Reminders is implemented by the reminder scheduler.
type Reminders interface {
	Schedule(appt Appointment, recipients []string) bool
	Cancel(id int64) bool
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	reminders Reminders
	logger    *logging.Logger
}

func NewService(repo Repository, locker redisclient.Locker, reminders Reminders, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		reminders: reminders,
		logger:    logger.With("component", "appointment"),
	}
}

func validate(n NewAppointment) error {
	if strings.TrimSpace(n.FirstName) == "" || strings.TrimSpace(n.Mobile) == "" {
		return fmt.Errorf("%w: name and mobile are required", ErrInvalidRequest)
	}
	if !slot.Valid(n.SlotIndex) {
		return fmt.Errorf("%w: slot %d", ErrInvalidRequest, n.SlotIndex)
	}
	if _, err := parseDate(n.Date); err != nil {
		return err
	}
	return nil
}

// Book reserves a slot and schedules its reminder for the creator.
// The slot lock serialises bookings per (date, slot); the storage unique
// constraint is the final word and surfaces as ErrSlotTaken.
func (s *Service) Book(ctx context.Context, n NewAppointment) (*Appointment, error) {
	if err := validate(n); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(n.Date, n.SlotIndex), func(lockCtx context.Context) error {
		existing, err := s.repo.FindByDateAndSlot(lockCtx, n.Date, n.SlotIndex)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check slot: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt, err := s.repo.Insert(lockCtx, n)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		// Inside the lock so a concurrent ClearSlot sees the timer and cancels it.
		s.reminders.Schedule(*appt, []string{n.CreatorNumber})

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"date":       appt.Date,
			"slot_index": appt.SlotIndex,
			"creator":    appt.CreatorNumber,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// ClearSlot deletes whatever is booked at (date, slot), cancelling its
// reminder first. ErrAppointmentNotFound means the slot was already free.
func (s *Service) ClearSlot(ctx context.Context, date string, slotIndex int) (*Appointment, error) {
	if !slot.Valid(slotIndex) {
		return nil, fmt.Errorf("%w: slot %d", ErrInvalidRequest, slotIndex)
	}

	var removed *Appointment

	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(date, slotIndex), func(lockCtx context.Context) error {
		existing, err := s.repo.FindByDateAndSlot(lockCtx, date, slotIndex)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}

		s.reminders.Cancel(existing.ID)

		n, err := s.repo.DeleteByDateAndSlot(lockCtx, date, slotIndex)
		if err != nil {
			// The row survived, so its reminder must too.
			if existing.CreatorNumber != "" {
				s.reminders.Schedule(*existing, []string{existing.CreatorNumber})
			}
			return fmt.Errorf("clear slot: %w", err)
		}
		if n == 0 {
			return ErrAppointmentNotFound
		}
		removed = existing

		s.logEvent(lockCtx, existing.ID, EventAppointmentCleared, map[string]any{
			"date":       date,
			"slot_index": slotIndex,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return removed, nil
}

// DaySchedule lists the bookings of one day ordered by slot.
func (s *Service) DaySchedule(ctx context.Context, date string) ([]Appointment, error) {
	appts, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list day schedule: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event", eventType, "err", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log", "event", eventType, "appointment_id", appointmentID, "err", err)
	}
}

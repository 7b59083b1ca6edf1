package appointment

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already booked")
)

// Repository contains all storage operations needed by the booking service
// and the reminder scheduler.
type Repository interface {
	// Insert fails with ErrSlotTaken when (date, slot) is already booked.
	Insert(ctx context.Context, a NewAppointment) (*Appointment, error)
	FindByDateAndSlot(ctx context.Context, date string, slotIndex int) (*Appointment, error)
	// ListByDate is ordered by slot index.
	ListByDate(ctx context.Context, date string) ([]Appointment, error)
	DeleteByDateAndSlot(ctx context.Context, date string, slotIndex int) (int64, error)

	// Reminder recovery: appointments on the given dates with a creator number.
	ListUpcoming(ctx context.Context, dates []string) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

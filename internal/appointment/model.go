package appointment

import (
	"strings"
	"time"
)

// Appointment is one booked slot on one day.
// SlotIndex is authoritative; Time is the display string derived from it.
type Appointment struct {
	ID            int64
	FirstName     string
	LastName      string
	Mobile        string
	Date          string // YYYY-MM-DD
	Time          string // e.g. "2:00 PM"
	SlotIndex     int
	CreatorNumber string
	Notes         string
	CreatedAt     time.Time
}

// FullName joins first and last name, skipping an empty last name.
func (a Appointment) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// NewAppointment holds the fields supplied when booking.
type NewAppointment struct {
	FirstName     string
	LastName      string
	Mobile        string
	Date          string
	SlotIndex     int
	CreatorNumber string
	Notes         string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

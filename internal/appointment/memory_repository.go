package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
)

// maxMemoryEvents bounds the in-memory event log; older entries are dropped.
const maxMemoryEvents = 1000

type slotKey struct {
	date string
	slot int
}

// MemoryRepository keeps appointments in process memory. It enforces the
// same (date, slot) uniqueness as the Postgres schema.
type MemoryRepository struct {
	mu          sync.RWMutex
	nextID      int64
	nextEventID int64
	byKey       map[slotKey]Appointment
	events      []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byKey: make(map[slotKey]Appointment)}
}

func (r *MemoryRepository) Insert(_ context.Context, n NewAppointment) (*Appointment, error) {
	if _, err := parseDate(n.Date); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{n.Date, n.SlotIndex}
	if _, exists := r.byKey[key]; exists {
		return nil, ErrSlotTaken
	}

	r.nextID++
	a := Appointment{
		ID:            r.nextID,
		FirstName:     n.FirstName,
		LastName:      n.LastName,
		Mobile:        n.Mobile,
		Date:          n.Date,
		Time:          slot.DisplayTime(n.SlotIndex),
		SlotIndex:     n.SlotIndex,
		CreatorNumber: n.CreatorNumber,
		Notes:         n.Notes,
		CreatedAt:     time.Now(),
	}
	r.byKey[key] = a
	return &a, nil
}

func (r *MemoryRepository) FindByDateAndSlot(_ context.Context, date string, slotIndex int) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byKey[slotKey{date, slotIndex}]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListByDate(_ context.Context, date string) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.Date == date }), nil
}

func (r *MemoryRepository) DeleteByDateAndSlot(_ context.Context, date string, slotIndex int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{date, slotIndex}
	if _, ok := r.byKey[key]; !ok {
		return 0, nil
	}
	delete(r.byKey, key)
	return 1, nil
}

func (r *MemoryRepository) ListUpcoming(_ context.Context, dates []string) ([]Appointment, error) {
	wanted := make(map[string]bool, len(dates))
	for _, d := range dates {
		wanted[d] = true
	}
	return r.list(func(a Appointment) bool {
		return wanted[a.Date] && a.CreatorNumber != ""
	}), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	r.events = append(r.events, ev)
	if over := len(r.events) - maxMemoryEvents; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
	return nil
}

// Events returns a copy of the most recent events, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) list(keep func(Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byKey {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out
}

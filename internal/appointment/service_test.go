package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/jewelry-appointment-bot/internal/redis"
	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

type fakeReminders struct {
	mu        sync.Mutex
	scheduled map[int64][]string
	cancelled []int64
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{scheduled: make(map[int64][]string)}
}

func (f *fakeReminders) Schedule(a Appointment, recipients []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[a.ID] = recipients
	return true
}

func (f *fakeReminders) Cancel(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	_, ok := f.scheduled[id]
	delete(f.scheduled, id)
	return ok
}

func newTestService(repo Repository) (*Service, *fakeReminders) {
	rem := newFakeReminders()
	return NewService(repo, redisclient.NewLocalSlotLocker(), rem, logging.Discard()), rem
}

func booking(slotIndex int) NewAppointment {
	return NewAppointment{
		FirstName:     "Rahul",
		Mobile:        "9876543210",
		Date:          "2026-10-19",
		SlotIndex:     slotIndex,
		CreatorNumber: "whatsapp:+911111111111",
		Notes:         "Ring fitting",
	}
}

func TestBookPersistsAndSchedulesReminder(t *testing.T) {
	repo := NewMemoryRepository()
	svc, rem := newTestService(repo)

	appt, err := svc.Book(context.Background(), booking(6))
	require.NoError(t, err)

	assert.Equal(t, "2:00 PM", appt.Time)
	assert.Equal(t, []string{"whatsapp:+911111111111"}, rem.scheduled[appt.ID])

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)
}

func TestBookRejectsTakenSlot(t *testing.T) {
	svc, rem := newTestService(NewMemoryRepository())

	_, err := svc.Book(context.Background(), booking(6))
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), booking(6))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Len(t, rem.scheduled, 1)
}

func TestBookConcurrentSameSlotLeavesOneRow(t *testing.T) {
	repo := NewMemoryRepository()
	svc, _ := newTestService(repo)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	booked := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), booking(3))
			if err == nil {
				mu.Lock()
				booked++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSlotTaken) && !errors.Is(err, ErrSlotBeingBooked) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	appts, err := repo.ListByDate(context.Background(), "2026-10-19")
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

// raceRepo simulates a concurrent writer winning between the check and
// the insert: the lookup says free, the constraint says taken.
type raceRepo struct {
	*MemoryRepository
}

func (raceRepo) FindByDateAndSlot(context.Context, string, int) (*Appointment, error) {
	return nil, ErrAppointmentNotFound
}

func (raceRepo) Insert(context.Context, NewAppointment) (*Appointment, error) {
	return nil, ErrSlotTaken
}

func TestBookTreatsConstraintViolationAsTaken(t *testing.T) {
	svc, rem := newTestService(raceRepo{NewMemoryRepository()})

	_, err := svc.Book(context.Background(), booking(6))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Empty(t, rem.scheduled)
}

type brokenRepo struct {
	*MemoryRepository
}

func (brokenRepo) FindByDateAndSlot(context.Context, string, int) (*Appointment, error) {
	return nil, errors.New("connection reset")
}

func TestBookWrapsStorageErrors(t *testing.T) {
	svc, _ := newTestService(brokenRepo{NewMemoryRepository()})

	_, err := svc.Book(context.Background(), booking(6))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotTaken)
	assert.Contains(t, err.Error(), "connection reset")
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookReportsLockContention(t *testing.T) {
	svc := NewService(NewMemoryRepository(), busyLocker{}, newFakeReminders(), logging.Discard())

	_, err := svc.Book(context.Background(), booking(6))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestBookValidation(t *testing.T) {
	svc, _ := newTestService(NewMemoryRepository())

	tests := []struct {
		name   string
		mutate func(*NewAppointment)
	}{
		{"missing name", func(n *NewAppointment) { n.FirstName = " " }},
		{"missing mobile", func(n *NewAppointment) { n.Mobile = "" }},
		{"slot out of range", func(n *NewAppointment) { n.SlotIndex = 18 }},
		{"bad date", func(n *NewAppointment) { n.Date = "19-10-2026" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := booking(6)
			tt.mutate(&n)
			_, err := svc.Book(context.Background(), n)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestClearSlotCancelsReminderAndDeletes(t *testing.T) {
	repo := NewMemoryRepository()
	svc, rem := newTestService(repo)
	ctx := context.Background()

	appt, err := svc.Book(ctx, booking(1))
	require.NoError(t, err)
	_, err = svc.Book(ctx, booking(2))
	require.NoError(t, err)

	removed, err := svc.ClearSlot(ctx, "2026-10-19", 1)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, removed.ID)
	assert.Equal(t, []int64{appt.ID}, rem.cancelled)

	appts, err := svc.DaySchedule(ctx, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, 2, appts[0].SlotIndex)

	_, err = svc.ClearSlot(ctx, "2026-10-19", 1)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Len(t, rem.cancelled, 1)

	events := repo.Events()
	assert.Equal(t, EventAppointmentCleared, events[len(events)-1].EventType)
}

// hookReminders runs onSchedule while Book is registering the reminder.
type hookReminders struct {
	*fakeReminders
	onSchedule func()
}

func (h *hookReminders) Schedule(a Appointment, recipients []string) bool {
	if h.onSchedule != nil {
		hook := h.onSchedule
		h.onSchedule = nil
		hook()
	}
	return h.fakeReminders.Schedule(a, recipients)
}

func TestBookSchedulesReminderWhileHoldingSlotLock(t *testing.T) {
	repo := NewMemoryRepository()
	rem := &hookReminders{fakeReminders: newFakeReminders()}
	svc := NewService(repo, redisclient.NewLocalSlotLocker(), rem, logging.Discard())
	ctx := context.Background()

	var clearErr error
	rem.onSchedule = func() {
		_, clearErr = svc.ClearSlot(ctx, "2026-10-19", 1)
	}

	appt, err := svc.Book(ctx, booking(1))
	require.NoError(t, err)

	// The competing reschedule could not slip between insert and schedule.
	assert.ErrorIs(t, clearErr, ErrSlotBeingBooked)
	stored, err := repo.FindByDateAndSlot(ctx, "2026-10-19", 1)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, stored.ID)
	assert.Contains(t, rem.scheduled, appt.ID)

	_, err = svc.ClearSlot(ctx, "2026-10-19", 1)
	require.NoError(t, err)
	assert.NotContains(t, rem.scheduled, appt.ID)
}

type failingDeleteRepo struct {
	*MemoryRepository
}

func (failingDeleteRepo) DeleteByDateAndSlot(context.Context, string, int) (int64, error) {
	return 0, errors.New("db down")
}

func TestClearSlotKeepsReminderWhenDeleteFails(t *testing.T) {
	repo := failingDeleteRepo{NewMemoryRepository()}
	svc, rem := newTestService(repo)
	ctx := context.Background()

	appt, err := svc.Book(ctx, booking(4))
	require.NoError(t, err)

	_, err = svc.ClearSlot(ctx, "2026-10-19", 4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAppointmentNotFound)
	assert.Contains(t, err.Error(), "db down")

	stored, err := repo.FindByDateAndSlot(ctx, "2026-10-19", 4)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, stored.ID)
	assert.Equal(t, []string{"whatsapp:+911111111111"}, rem.scheduled[appt.ID])
}

func TestBookFallsBackToConstraintWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	repo := NewMemoryRepository()
	rem := newFakeReminders()
	svc := NewService(repo, redisclient.NewRedisSlotLocker(client, time.Second, logging.Discard()), rem, logging.Discard())
	ctx := context.Background()

	appt, err := svc.Book(ctx, booking(5))
	require.NoError(t, err)
	assert.Contains(t, rem.scheduled, appt.ID)

	_, err = svc.Book(ctx, booking(5))
	assert.ErrorIs(t, err, ErrSlotTaken)

	removed, err := svc.ClearSlot(ctx, "2026-10-19", 5)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, removed.ID)
}

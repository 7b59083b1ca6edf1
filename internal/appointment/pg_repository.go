package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
)

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, first_name, last_name, mobile, to_char(appt_date, 'YYYY-MM-DD'),
	display_time, slot_index, COALESCE(creator_number, ''), notes, created_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.Mobile,
		&a.Date,
		&a.Time,
		&a.SlotIndex,
		&a.CreatorNumber,
		&a.Notes,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func parseDate(date string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidRequest, date)
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, n NewAppointment) (*Appointment, error) {
	day, err := parseDate(n.Date)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (first_name, last_name, mobile, appt_date, display_time, slot_index, creator_number, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, now())
		RETURNING `+appointmentColumns,
		n.FirstName, n.LastName, n.Mobile, day, slot.DisplayTime(n.SlotIndex), n.SlotIndex, n.CreatorNumber, n.Notes)

	a, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) FindByDateAndSlot(ctx context.Context, date string, slotIndex int) (*Appointment, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1 AND slot_index = $2
	`, day, slotIndex)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDate(ctx context.Context, date string) ([]Appointment, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1
		ORDER BY slot_index
	`, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) DeleteByDateAndSlot(ctx context.Context, date string, slotIndex int) (int64, error) {
	day, err := parseDate(date)
	if err != nil {
		return 0, err
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE appt_date = $1 AND slot_index = $2
	`, day, slotIndex)
	if err != nil {
		return 0, fmt.Errorf("delete appointment: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListUpcoming(ctx context.Context, dates []string) ([]Appointment, error) {
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day, err := parseDate(d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = ANY($1::date[])
		  AND COALESCE(creator_number, '') <> ''
		ORDER BY appt_date, slot_index
	`, days)
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

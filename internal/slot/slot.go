// Package slot maps human time expressions onto the shop's fixed half-hour
// booking grid and back.
package slot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	WorkStartHour = 11
	WorkEndHour   = 20
	SlotMinutes   = 30

	// Count is the number of bookable slots per day (11:00 AM to 7:30 PM starts).
	Count = (WorkEndHour - WorkStartHour) * 60 / SlotMinutes
)

var (
	ErrInvalidFormat = errors.New("invalid time format")
	ErrOutsideHours  = errors.New("time outside working hours")
)

var (
	looseRe  = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	strictRe = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}\s*(AM|PM)$`)
)

// ParseLoose accepts "2pm", "2:30 PM", "11:00am" and friends.
func ParseLoose(text string) (int, error) {
	m := looseRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, ErrInvalidFormat
	}
	return toIndex(m[1], m[2], m[3])
}

// ParseStrict only accepts H:MM AM|PM, as required for new bookings.
func ParseStrict(text string) (int, error) {
	text = strings.TrimSpace(text)
	if !strictRe.MatchString(text) {
		return 0, ErrInvalidFormat
	}
	return ParseLoose(text)
}

func toIndex(hourText, minuteText, meridiem string) (int, error) {
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 1 || hour > 12 {
		return 0, ErrInvalidFormat
	}
	minute := 0
	if minuteText != "" {
		minute, err = strconv.Atoi(minuteText)
		if err != nil || minute > 59 {
			return 0, ErrInvalidFormat
		}
	}

	switch pm := strings.EqualFold(meridiem, "pm"); {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}

	if hour < WorkStartHour || hour >= WorkEndHour {
		return 0, ErrOutsideHours
	}

	idx := (hour - WorkStartHour) * 2
	if minute >= SlotMinutes {
		idx++
	}
	return idx, nil
}

// Valid reports whether idx names a bookable slot.
func Valid(idx int) bool {
	return idx >= 0 && idx < Count
}

func clock24(idx int) (hour, minute int) {
	total := WorkStartHour*60 + idx*SlotMinutes
	return total / 60, total % 60
}

func format12(hour, minute int) (int, int, string) {
	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return h, minute, meridiem
}

// DisplayTime renders the slot start, e.g. "2:00 PM".
func DisplayTime(idx int) string {
	h, m, mer := format12(clock24(idx))
	return fmt.Sprintf("%d:%02d %s", h, m, mer)
}

// DisplayRange renders start and end in lower case, e.g. "2:00 pm - 2:30 pm".
func DisplayRange(idx int) string {
	sh, sm, smer := format12(clock24(idx))
	eh, em, emer := format12(clock24(idx + 1))
	return fmt.Sprintf("%d:%02d %s - %d:%02d %s",
		sh, sm, strings.ToLower(smer), eh, em, strings.ToLower(emer))
}

// StartOf returns the instant the slot begins on the given YYYY-MM-DD date.
func StartOf(date string, idx int, loc *time.Location) (time.Time, error) {
	if !Valid(idx) {
		return time.Time{}, fmt.Errorf("slot index %d: %w", idx, ErrOutsideHours)
	}
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	hour, minute := clock24(idx)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// Package clock resolves "now", "today" and "tomorrow" in the business timezone.
package clock

import (
	"fmt"
	"time"
)

// Clock is the time source shared by the bot and the reminder scheduler.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type zoned struct {
	loc *time.Location
	now func() time.Time
}

// New returns a wall clock pinned to loc.
func New(loc *time.Location) Clock {
	return &zoned{loc: loc, now: time.Now}
}

// Fixed returns a clock frozen at t, for tests and simulations.
func Fixed(loc *time.Location, t time.Time) Clock {
	return &zoned{loc: loc, now: func() time.Time { return t }}
}

// Load resolves an IANA zone name into a wall clock.
func Load(name string) (Clock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return New(loc), nil
}

func (c *zoned) Now() time.Time           { return c.now().In(c.loc) }
func (c *zoned) Location() *time.Location { return c.loc }

// Date returns the YYYY-MM-DD calendar date offset days from today.
func Date(c Clock, offset int) string {
	return c.Now().AddDate(0, 0, offset).Format(time.DateOnly)
}

func Today(c Clock) string    { return Date(c, 0) }
func Tomorrow(c Clock) string { return Date(c, 1) }

// Package timeutil provides calendar-day helpers for study streaks and an
// injectable clock.
//
// Streaks are counted by calendar day in the learner's location, not by
// elapsed hours: 23:59 on Monday and 00:01 on Tuesday are consecutive days.
package timeutil

import (
	"sync"
	"time"
)

// FormatDate is the layout of persisted calendar dates (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Day is 24 hours.
const Day = 24 * time.Hour

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock abstracts time.Now so domain code can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock set to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now implements Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR DAYS
// ══════════════════════════════════════════════════════════════════════════════

// Calendar formats instants as calendar dates in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a Calendar for loc. A nil loc means time.Local.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

// LoadCalendar resolves an IANA zone name. An empty name means time.Local.
func LoadCalendar(name string) (Calendar, error) {
	if name == "" {
		return NewCalendar(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, err
	}
	return NewCalendar(loc), nil
}

// Location returns the calendar's location.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// DateString returns t's calendar date as YYYY-MM-DD.
func (c Calendar) DateString(t time.Time) string {
	return t.In(c.Location()).Format(FormatDate)
}

// Yesterday returns the calendar date of the day before t.
func (c Calendar) Yesterday(t time.Time) string {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day()-1, 12, 0, 0, 0, c.Location()).Format(FormatDate)
}

// ParseDate parses a YYYY-MM-DD date as midnight in the calendar's location.
func (c Calendar) ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, date, c.Location())
}

// IsSameDay reports whether a and b fall on the same calendar day.
func (c Calendar) IsSameDay(a, b time.Time) bool {
	return c.DateString(a) == c.DateString(b)
}

// IsConsecutiveDay reports whether b falls on the calendar day after a.
func (c Calendar) IsConsecutiveDay(a, b time.Time) bool {
	return c.Yesterday(b) == c.DateString(a)
}

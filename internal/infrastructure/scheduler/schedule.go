package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job every Interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule. Non-positive intervals fall back to one
// minute.
func Every(interval time.Duration) IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return IntervalSchedule{Interval: interval}
}

// Next returns t + Interval.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// DailySchedule runs a job once a day at a wall-clock time in the location
// of the time passed to Next.
type DailySchedule struct {
	Hour   int
	Minute int
}

// ParseDaily parses "HH:MM".
func ParseDaily(s string) (DailySchedule, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DailySchedule{}, fmt.Errorf("invalid daily schedule %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return DailySchedule{}, fmt.Errorf("invalid hour in daily schedule %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return DailySchedule{}, fmt.Errorf("invalid minute in daily schedule %q", s)
	}
	return DailySchedule{Hour: hour, Minute: minute}, nil
}

// Next returns the first HH:MM strictly after t, keeping the wall-clock
// time across DST changes.
func (s DailySchedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, s.Hour, s.Minute, 0, 0, t.Location())
	}
	return next
}

func (s DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.Hour, s.Minute)
}

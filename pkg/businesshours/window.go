// Package businesshours models weekly opening windows in a timezone.
package businesshours

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidClock indicates a time-of-day that is not HH:mm.
var ErrInvalidClock = errors.New("invalid time of day, expected HH:mm")

// Window is a daily opening window on a set of weekdays. When Start is after
// End the window runs overnight and belongs to the day it opens on.
type Window struct {
	days     map[time.Weekday]bool
	start    int
	end      int
	location *time.Location
}

// New builds a window from HH:mm bounds. An empty days list allows every day.
func New(days []int, start, end string, loc *time.Location) (*Window, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return nil, err
	}

	endMin, err := ParseClock(end)
	if err != nil {
		return nil, err
	}

	if loc == nil {
		loc = time.UTC
	}

	w := &Window{start: startMin, end: endMin, location: loc}

	if len(days) > 0 {
		w.days = make(map[time.Weekday]bool, len(days))

		for _, d := range days {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("invalid weekday %d", d)
			}

			w.days[time.Weekday(d)] = true
		}
	}

	return w, nil
}

// Location returns the window's timezone.
func (w *Window) Location() *time.Location {
	return w.location
}

// IsOpen reports whether t falls inside the window.
func (w *Window) IsOpen(t time.Time) bool {
	local := t.In(w.location)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case w.start == w.end:
		return w.allows(local.Weekday())
	case w.start < w.end:
		return w.allows(local.Weekday()) && minute >= w.start && minute < w.end
	default:
		if minute >= w.start {
			return w.allows(local.Weekday())
		}

		if minute < w.end {
			return w.allows(local.AddDate(0, 0, -1).Weekday())
		}

		return false
	}
}

// NextOpen returns t when the window is open, else the next opening instant.
func (w *Window) NextOpen(t time.Time) time.Time {
	if w.IsOpen(t) {
		return t
	}

	local := t.In(w.location)

	for d := 0; d <= 7; d++ {
		day := local.AddDate(0, 0, d)
		opening := time.Date(day.Year(), day.Month(), day.Day(), w.start/60, w.start%60, 0, 0, w.location)

		if opening.After(t) && w.allows(opening.Weekday()) {
			return opening
		}
	}

	return t
}

func (w *Window) allows(d time.Weekday) bool {
	return len(w.days) == 0 || w.days[d]
}

// ParseClock parses HH:mm into minutes after midnight.
func ParseClock(clock string) (int, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
	}

	return parsed.Hour()*60 + parsed.Minute(), nil
}

// NextOccurrence returns the next instant at clock (HH:mm) in loc: today when
// still ahead of now, tomorrow otherwise.
func NextOccurrence(now time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), minutes/60, minutes%60, 0, 0, loc)

	if !candidate.After(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, minutes/60, minutes%60, 0, 0, loc)
	}

	return candidate, nil
}

// ResolveLocation returns the first loadable timezone among names, or UTC.
func ResolveLocation(names ...string) *time.Location {
	for _, name := range names {
		if name == "" {
			continue
		}

		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc
		}
	}

	return time.UTC
}

// CalendarDaysBetween counts local calendar days from a to b in loc.
func CalendarDaysBetween(a, b time.Time, loc *time.Location) int {
	la, lb := a.In(loc), b.In(loc)
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)

	return int(db.Sub(da).Hours() / 24)
}

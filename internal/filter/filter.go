// Package filter maps list predicates (today, week, month, explicit range)
// onto concrete recurrence windows.
package filter

import (
	"fmt"
	"strings"
	"time"

	"pcal/internal/recur"
)

type Kind int

const (
	// Default selects everything from today onward.
	Default Kind = iota
	Today
	Week
	Month
	Range
)

func (k Kind) String() string {
	switch k {
	case Today:
		return "today"
	case Week:
		return "week"
	case Month:
		return "month"
	case Range:
		return "range"
	default:
		return "default"
	}
}

// Filter is a date predicate. From and Until are only used by Range; they
// are interpreted as calendar dates and a nil side is open.
type Filter struct {
	Kind  Kind
	From  *time.Time
	Until *time.Time
}

// Window resolves f against now. Day boundaries are taken in now's location.
func (f Filter) Window(now time.Time, weekStart time.Weekday) recur.Window {
	today := midnight(now)
	switch f.Kind {
	case Today:
		return recur.Window{From: today, Until: endBefore(today.AddDate(0, 0, 1))}
	case Week:
		offset := (int(today.Weekday()) - int(weekStart) + 7) % 7
		start := today.AddDate(0, 0, -offset)
		return recur.Window{From: start, Until: endBefore(start.AddDate(0, 0, 7))}
	case Month:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return recur.Window{From: start, Until: endBefore(start.AddDate(0, 1, 0))}
	case Range:
		var w recur.Window
		if f.From != nil {
			w.From = midnight(f.From.In(now.Location()))
		}
		if f.Until != nil {
			w.Until = endBefore(midnight(f.Until.In(now.Location())).AddDate(0, 0, 1))
		}
		return w
	default:
		return recur.Window{From: today}
	}
}

// Matches reports whether an occurrence starting at t satisfies f.
func (f Filter) Matches(t, now time.Time, weekStart time.Weekday) bool {
	return f.Window(now, weekStart).Contains(t)
}

func (f Filter) String() string {
	if f.Kind != Range {
		return f.Kind.String()
	}
	from, until := "-inf", "+inf"
	if f.From != nil {
		from = f.From.Format(time.DateOnly)
	}
	if f.Until != nil {
		until = f.Until.Format(time.DateOnly)
	}
	return fmt.Sprintf("range %s..%s", from, until)
}

// Parse builds a Filter from CLI-style flags. today wins over week, week
// over month, month over an explicit range. With no flags set the result is
// the Default filter.
func Parse(today, week, month bool, from, until string, loc *time.Location) (Filter, error) {
	switch {
	case today:
		return Filter{Kind: Today}, nil
	case week:
		return Filter{Kind: Week}, nil
	case month:
		return Filter{Kind: Month}, nil
	}
	if from == "" && until == "" {
		return Filter{Kind: Default}, nil
	}

	f := Filter{Kind: Range}
	if from != "" {
		t, err := ParseDate(from, loc)
		if err != nil {
			return Filter{}, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if until != "" {
		t, err := ParseDate(until, loc)
		if err != nil {
			return Filter{}, fmt.Errorf("until: %w", err)
		}
		f.Until = &t
	}
	if f.From != nil && f.Until != nil && f.Until.Before(*f.From) {
		return Filter{}, fmt.Errorf("until %s is before from %s", until, from)
	}
	return f, nil
}

var dateLayouts = []string{time.DateOnly, "02/01/2006", "20060102"}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY or YYYYMMDD.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD or DD/MM/YYYY)", s)
}

// ParseWeekStart maps the config value to a weekday; anything but "sunday"
// is Monday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endBefore turns an exclusive boundary into the inclusive end of a window.
func endBefore(t time.Time) time.Time {
	return t.Add(-time.Nanosecond)
}

package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"pcal/internal/filter"
	"pcal/internal/model"
)

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	time.DateOnly,
	"02/01/2006",
}

// parseDateTime reads a local date-time; a bare date means midnight. An
// explicit offset (RFC 3339) is kept as given.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range dateTimeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q (want YYYY-MM-DD HH:MM, RFC 3339 or DD/MM/YYYY HH:MM)", s)
}

// eventFlags are the event fields shared by add and edit.
type eventFlags struct {
	title       string
	location    string
	description string
	start       string
	end         string
	duration    time.Duration
	repeat      string
	interval    int
	count       int
	until       string
}

func (e *eventFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&e.title, "title", "", "Event title")
	fs.StringVar(&e.location, "location", "", "Event location")
	fs.StringVar(&e.description, "description", "", "Free-text notes")
	fs.StringVar(&e.start, "start", "", "Start, e.g. 2024-06-20 09:30")
	fs.StringVar(&e.end, "end", "", "End (exclusive with -duration)")
	fs.DurationVar(&e.duration, "duration", 0, "Duration, e.g. 45m")
	fs.StringVar(&e.repeat, "repeat", "", "Recurrence: daily, weekly, monthly or yearly")
	fs.IntVar(&e.interval, "interval", 1, "Repeat every n units")
	fs.IntVar(&e.count, "count", 0, "Stop after n occurrences")
	fs.StringVar(&e.until, "until", "", "Last day an occurrence may start on")
}

// recurrence builds the rule from -repeat, -interval, -count and -until.
func (e *eventFlags) recurrence(loc *time.Location) (*model.Recurrence, error) {
	if e.repeat == "" {
		if e.count != 0 || e.until != "" {
			return nil, fmt.Errorf("-count and -until need -repeat")
		}
		return nil, nil
	}
	freq, err := model.ParseFrequency(e.repeat)
	if err != nil {
		return nil, err
	}
	rule := &model.Recurrence{Frequency: freq, Interval: e.interval, Count: e.count}
	if e.until != "" {
		day, err := filter.ParseDate(e.until, loc)
		if err != nil {
			// A full date-time bounds the rule exactly.
			t, derr := parseDateTime(e.until, loc)
			if derr != nil {
				return nil, fmt.Errorf("until: %w", err)
			}
			rule.Until = t
		} else {
			// Inclusive through the end of that day.
			rule.Until = day.AddDate(0, 0, 1).Add(-time.Second)
		}
	}
	return rule, nil
}

// visited returns the names of the flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// filterFlags are the list predicates shared by list and agenda.
type filterFlags struct {
	today bool
	week  bool
	month bool
	from  string
	until string
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.today, "today", false, "Only today")
	fs.BoolVar(&f.week, "week", false, "Only this week")
	fs.BoolVar(&f.month, "month", false, "Only this month")
	fs.StringVar(&f.from, "from", "", "First day (YYYY-MM-DD or DD/MM/YYYY)")
	fs.StringVar(&f.until, "until", "", "Last day (YYYY-MM-DD or DD/MM/YYYY)")
}

func (f *filterFlags) filter(loc *time.Location) (filter.Filter, error) {
	return filter.Parse(f.today, f.week, f.month, f.from, f.until, loc)
}

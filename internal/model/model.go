package model

import (
	"fmt"
	"strings"
	"time"
)

// Event is a calendar event, possibly recurring. Construct it with NewEvent so
// that ID and the fixed-offset zone are derived consistently.
type Event struct {
	ID       ID
	Title    string
	Location string
	// Description is free text. Like End it is not part of the ID.
	Description string

	// Start and End share one fixed-offset zone.
	Start time.Time
	End   time.Time

	// Recurrence is nil for a single, non-repeating event.
	Recurrence *Recurrence
}

// Occurrence represents a single concrete instance of an event after
// recurrence expansion.
type Occurrence struct {
	EventID  ID
	Title    string
	Location string

	Start time.Time
	End   time.Time
}

// EventParams carries the user-supplied fields of an event. End wins over
// Duration when both are set.
type EventParams struct {
	Title       string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	Recurrence  *Recurrence
}

// NewEvent validates p and builds an Event with its content-derived ID.
func NewEvent(p EventParams) (Event, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Event{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Start.IsZero() {
		return Event{}, &ValidationError{Field: "start", Reason: "must be set"}
	}

	_, offset := p.Start.Zone()
	loc := fixedZone(offset)
	start := p.Start.In(loc)

	end := p.End
	if end.IsZero() {
		if p.Duration < 0 {
			return Event{}, &ValidationError{Field: "duration", Reason: "must not be negative"}
		}
		end = start.Add(p.Duration)
	}
	if end.Before(start) {
		return Event{}, &ValidationError{Field: "end", Reason: "must not be before start"}
	}

	var rec *Recurrence
	if p.Recurrence != nil {
		r := *p.Recurrence
		if err := r.Validate(); err != nil {
			return Event{}, err
		}
		if !r.Until.IsZero() {
			r.Until = r.Until.In(loc)
		}
		r = r.canonical(start)
		rec = &r
	}

	ev := Event{
		Title:       title,
		Location:    strings.TrimSpace(p.Location),
		Description: strings.TrimSpace(p.Description),
		Start:       start,
		End:         end.In(loc),
		Recurrence:  rec,
	}
	ev.ID = deriveID(ev)
	return ev, nil
}

// Params returns the fields NewEvent needs to rebuild e.
func (e Event) Params() EventParams {
	p := EventParams{
		Title:       e.Title,
		Location:    e.Location,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
	}
	if e.Recurrence != nil {
		r := *e.Recurrence
		p.Recurrence = &r
	}
	return p
}

func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func (e Event) Recurring() bool {
	return e.Recurrence != nil
}

// Occurrence builds the occurrence of e starting at start.
func (e Event) Occurrence(start time.Time) Occurrence {
	return Occurrence{
		EventID:  e.ID,
		Title:    e.Title,
		Location: e.Location,
		Start:    start,
		End:      start.Add(e.Duration()),
	}
}

// Equal reports whether both events carry the same fields. Instants are
// compared with time.Equal, and the UTC offset of Start must match as well.
func (e Event) Equal(o Event) bool {
	if e.ID != o.ID || e.Title != o.Title || e.Location != o.Location || e.Description != o.Description {
		return false
	}
	if !e.Start.Equal(o.Start) || !e.End.Equal(o.End) {
		return false
	}
	_, eo := e.Start.Zone()
	_, oo := o.Start.Zone()
	if eo != oo {
		return false
	}
	switch {
	case e.Recurrence == nil && o.Recurrence == nil:
		return true
	case e.Recurrence == nil || o.Recurrence == nil:
		return false
	default:
		return e.Recurrence.Equal(*o.Recurrence)
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s %q %s", ShortID(e.ID), e.Title, e.Start.Format(time.RFC3339))
}

func fixedZone(offset int) *time.Location {
	return time.FixedZone("", offset)
}

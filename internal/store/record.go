package store

import (
	"fmt"
	"time"

	"pcal/internal/calendar"
	"pcal/internal/model"
)

// formatVersion is written into every calendar file.
const formatVersion = 1

type calendarRecord struct {
	Version int           `json:"version"`
	Name    string        `json:"name"`
	Events  []eventRecord `json:"events"`
}

// eventRecord is the persisted form of an event. Times are RFC 3339 strings
// so the stored UTC offset survives a reload.
type eventRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Location    string            `json:"location,omitempty"`
	Description string            `json:"description,omitempty"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Recurrence  *recurrenceRecord `json:"recurrence,omitempty"`
}

type recurrenceRecord struct {
	Frequency string `json:"freq"`
	Interval  int    `json:"interval"`
	Count     int    `json:"count,omitempty"`
	Until     string `json:"until,omitempty"`
}

func toRecord(cal *calendar.Calendar) calendarRecord {
	events := cal.List()
	rec := calendarRecord{
		Version: formatVersion,
		Name:    cal.Name(),
		Events:  make([]eventRecord, 0, len(events)),
	}
	for _, ev := range events {
		rec.Events = append(rec.Events, toEventRecord(ev))
	}
	return rec
}

func toEventRecord(ev model.Event) eventRecord {
	r := eventRecord{
		ID:          ev.ID.String(),
		Title:       ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       ev.Start.Format(time.RFC3339Nano),
		End:         ev.End.Format(time.RFC3339Nano),
	}
	if rule := ev.Recurrence; rule != nil {
		r.Recurrence = &recurrenceRecord{
			Frequency: rule.Frequency.String(),
			Interval:  rule.Interval,
			Count:     rule.Count,
		}
		if !rule.Until.IsZero() {
			r.Recurrence.Until = rule.Until.Format(time.RFC3339Nano)
		}
	}
	return r
}

// fromRecord rebuilds a calendar. Events are validated through
// model.NewEvent but keep the ID they were stored with.
func fromRecord(rec calendarRecord) (*calendar.Calendar, error) {
	if rec.Version > formatVersion {
		return nil, fmt.Errorf("calendar %q: unsupported format version %d", rec.Name, rec.Version)
	}
	events := make([]model.Event, 0, len(rec.Events))
	for i, r := range rec.Events {
		ev, err := fromEventRecord(r)
		if err != nil {
			return nil, fmt.Errorf("calendar %q event %d: %w", rec.Name, i+1, err)
		}
		events = append(events, ev)
	}
	return calendar.Restore(rec.Name, events)
}

func fromEventRecord(r eventRecord) (model.Event, error) {
	id, err := model.ParseID(r.ID)
	if err != nil {
		return model.Event{}, err
	}
	start, err := time.Parse(time.RFC3339Nano, r.Start)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, r.End)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	p := model.EventParams{Title: r.Title, Location: r.Location, Description: r.Description, Start: start, End: end}
	if r.Recurrence != nil {
		freq, err := model.ParseFrequency(r.Recurrence.Frequency)
		if err != nil {
			return model.Event{}, err
		}
		rule := &model.Recurrence{Frequency: freq, Interval: r.Recurrence.Interval, Count: r.Recurrence.Count}
		if r.Recurrence.Until != "" {
			if rule.Until, err = time.Parse(time.RFC3339Nano, r.Recurrence.Until); err != nil {
				return model.Event{}, fmt.Errorf("until: %w", err)
			}
		}
		p.Recurrence = rule
	}

	ev, err := model.NewEvent(p)
	if err != nil {
		return model.Event{}, err
	}
	ev.ID = id
	return ev, nil
}

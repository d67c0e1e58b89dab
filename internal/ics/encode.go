package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"pcal/internal/model"
)

// ProductID is written as PRODID on exported calendars.
const ProductID = "-//pcal//pcal calendar//EN"

// EncodeOptions tunes the exported text.
type EncodeOptions struct {
	// Stamp is written as DTSTAMP. If zero, the current time is used.
	Stamp time.Time
	// Name, when set, is written as X-WR-CALNAME.
	Name string
}

// Encode writes events as one VCALENDAR with a VEVENT per event.
func Encode(w io.Writer, events []model.Event, opts EncodeOptions) error {
	_, err := io.WriteString(w, Marshal(events, opts))
	return err
}

// Marshal renders events as iCalendar text.
func Marshal(events []model.Event, opts EncodeOptions) string {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID.String())
		ve.SetDtStampTime(stamp)
		ve.SetProperty(ical.ComponentPropertySummary, escapeText(ev.Title))
		if ev.Location != "" {
			ve.SetProperty(ical.ComponentPropertyLocation, escapeText(ev.Location))
		}
		if ev.Description != "" {
			ve.SetProperty(ical.ComponentPropertyDescription, escapeText(ev.Description))
		}
		ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.UTC().Format(utcLayout))
		ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.UTC().Format(utcLayout))
		ve.SetProperty(offsetProperty, ev.Start.Format("-0700"))
		if ev.Recurrence != nil {
			ve.AddProperty(ical.ComponentPropertyRrule, ev.Recurrence.String())
		}
	}
	return cal.Serialize()
}

// MarshalEvent renders a single event without the surrounding calendar.
func MarshalEvent(ev model.Event, opts EncodeOptions) string {
	text := Marshal([]model.Event{ev}, opts)
	begin := strings.Index(text, "BEGIN:VEVENT")
	end := strings.LastIndex(text, "END:VEVENT")
	if begin < 0 || end < 0 {
		return text
	}
	return text[begin:end+len("END:VEVENT")] + "\r\n"
}

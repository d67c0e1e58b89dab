package model

import (
	"errors"
	"testing"
	"time"
)

func mustEvent(t *testing.T, p EventParams) Event {
	t.Helper()
	ev, err := NewEvent(p)
	if err != nil {
		t.Fatalf("NewEvent(%+v): %v", p, err)
	}
	return ev
}

func TestNewEventValidation(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		p     EventParams
		field string
	}{
		{
			name:  "empty title",
			p:     EventParams{Title: "  ", Start: start, Duration: time.Hour},
			field: "title",
		},
		{
			name:  "zero start",
			p:     EventParams{Title: "Standup"},
			field: "start",
		},
		{
			name:  "end before start",
			p:     EventParams{Title: "Standup", Start: start, End: start.Add(-time.Minute)},
			field: "end",
		},
		{
			name:  "negative duration",
			p:     EventParams{Title: "Standup", Start: start, Duration: -time.Hour},
			field: "duration",
		},
		{
			name: "zero interval",
			p: EventParams{Title: "Standup", Start: start, Duration: time.Hour,
				Recurrence: &Recurrence{Frequency: Daily, Interval: 0}},
			field: "interval",
		},
		{
			name: "negative count",
			p: EventParams{Title: "Standup", Start: start, Duration: time.Hour,
				Recurrence: &Recurrence{Frequency: Weekly, Interval: 1, Count: -1}},
			field: "count",
		},
		{
			name: "unknown frequency",
			p: EventParams{Title: "Standup", Start: start, Duration: time.Hour,
				Recurrence: &Recurrence{Interval: 1}},
			field: "frequency",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvent(tt.p)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("NewEvent() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestNewEventZeroDurationIsValid(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := mustEvent(t, EventParams{Title: "Deadline", Start: start, End: start})
	if ev.Duration() != 0 {
		t.Errorf("Duration() = %v, want 0", ev.Duration())
	}
}

func TestNewEventDurationBecomesEnd(t *testing.T) {
	start := time.Date(2024, 3, 10, 14, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := mustEvent(t, EventParams{Title: "Dentist", Start: start, Duration: 90 * time.Minute})

	if !ev.End.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("End = %v, want %v", ev.End, start.Add(90*time.Minute))
	}
	if _, off := ev.End.Zone(); off != 3600 {
		t.Errorf("End offset = %d, want 3600", off)
	}
}

func TestIDIsDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := &Recurrence{Frequency: Weekly, Interval: 2, Count: 4}
	a := mustEvent(t, EventParams{Title: "Review", Location: "Room 1", Start: start, Duration: time.Hour, Recurrence: rec})
	b := mustEvent(t, EventParams{Title: "Review", Location: "Room 1", Start: start, Duration: time.Hour, Recurrence: rec})
	if a.ID != b.ID {
		t.Errorf("same input produced ids %s and %s", a.ID, b.ID)
	}

	// Same instant expressed with another offset keeps the ID.
	shifted := start.In(time.FixedZone("", 2*3600))
	c := mustEvent(t, EventParams{Title: "Review", Location: "Room 1", Start: shifted, Duration: time.Hour, Recurrence: rec})
	if a.ID != c.ID {
		t.Errorf("offset change altered id: %s vs %s", a.ID, c.ID)
	}

	// End is not part of the identity.
	d := mustEvent(t, EventParams{Title: "Review", Location: "Room 1", Start: start, Duration: 2 * time.Hour, Recurrence: rec})
	if a.ID != d.ID {
		t.Errorf("end change altered id: %s vs %s", a.ID, d.ID)
	}

	// Neither is the description.
	e := mustEvent(t, EventParams{Title: "Review", Location: "Room 1", Description: "agenda in the doc", Start: start, Duration: time.Hour, Recurrence: rec})
	if a.ID != e.ID {
		t.Errorf("description altered id: %s vs %s", a.ID, e.ID)
	}

	variants := []EventParams{
		{Title: "Review!", Location: "Room 1", Start: start, Duration: time.Hour, Recurrence: rec},
		{Title: "Review", Location: "Room 2", Start: start, Duration: time.Hour, Recurrence: rec},
		{Title: "Review", Location: "Room 1", Start: start.Add(time.Minute), Duration: time.Hour, Recurrence: rec},
		{Title: "Review", Location: "Room 1", Start: start, Duration: time.Hour},
	}
	for i, p := range variants {
		if ev := mustEvent(t, p); ev.ID == a.ID {
			t.Errorf("variant %d kept id %s", i, a.ID)
		}
	}
}

func TestEqual(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.FixedZone("", 7200))
	until := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := EventParams{Title: "Gym", Start: start, Duration: time.Hour,
		Recurrence: &Recurrence{Frequency: Daily, Interval: 1, Until: until}}
	a := mustEvent(t, p)
	b := mustEvent(t, p)
	if !a.Equal(b) {
		t.Errorf("identical events are not Equal")
	}

	utc := p
	utc.Start = start.UTC()
	c := mustEvent(t, utc)
	if a.Equal(c) {
		t.Errorf("events with different offsets compare Equal")
	}

	described := p
	described.Description = "  bring shoes\n"
	d := mustEvent(t, described)
	if d.Description != "bring shoes" {
		t.Errorf("Description = %q, want it trimmed", d.Description)
	}
	if a.Equal(d) || d.ID != a.ID {
		t.Errorf("description change: Equal = %v, same id = %v", a.Equal(d), d.ID == a.ID)
	}
	if back := mustEvent(t, d.Params()); !back.Equal(d) {
		t.Errorf("Params round trip lost the description: %q", back.Description)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{"daily", Daily, false},
		{"WEEKLY", Weekly, false},
		{" Monthly ", Monthly, false},
		{"yearly", Yearly, false},
		{"HOURLY", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrequency(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrequency(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecurrenceString(t *testing.T) {
	until := time.Date(2024, 12, 31, 23, 0, 0, 0, time.FixedZone("", 3600))
	tests := []struct {
		r    Recurrence
		want string
	}{
		{Recurrence{Frequency: Daily, Interval: 1}, "FREQ=DAILY"},
		{Recurrence{Frequency: Weekly, Interval: 2, Count: 5}, "FREQ=WEEKLY;INTERVAL=2;COUNT=5"},
		{Recurrence{Frequency: Monthly, Interval: 1, Until: until}, "FREQ=MONTHLY;UNTIL=20241231T220000Z"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	ev := mustEvent(t, EventParams{Title: "x", Start: time.Unix(0, 0), Duration: time.Minute})
	got, err := ParseID(ev.ID.String())
	if err != nil || got != ev.ID {
		t.Errorf("ParseID() = %v, %v; want %v", got, err, ev.ID)
	}
	if _, err := ParseID("not-an-id"); err == nil {
		t.Errorf("ParseID(garbage) succeeded")
	}
	if len(ShortID(ev.ID)) != 8 {
		t.Errorf("ShortID() = %q, want 8 chars", ShortID(ev.ID))
	}
}

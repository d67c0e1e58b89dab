package calendar

import (
	"errors"
	"testing"
	"time"

	"pcal/internal/model"
	"pcal/internal/recur"
)

func event(t *testing.T, title string, start time.Time, d time.Duration, rec *model.Recurrence) model.Event {
	t.Helper()
	ev, err := model.NewEvent(model.EventParams{Title: title, Start: start, Duration: d, Recurrence: rec})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestAddKeepsInsertionOrder(t *testing.T) {
	c := New("work")
	titles := []string{"c", "a", "b"}
	for i, title := range titles {
		if _, err := c.Add(event(t, title, base.Add(time.Duration(i)*time.Hour), time.Hour, nil), false); err != nil {
			t.Fatal(err)
		}
	}
	got := c.List()
	for i, ev := range got {
		if ev.Title != titles[i] {
			t.Errorf("List()[%d] = %q, want %q", i, ev.Title, titles[i])
		}
	}
}

func TestAddDuplicate(t *testing.T) {
	c := New("work")
	a := event(t, "Review", base, time.Hour, nil)
	b := event(t, "Other", base, time.Hour, nil)
	c.Add(a, false)
	c.Add(b, false)

	_, err := c.Add(a, false)
	var dup *DuplicateError
	if !errors.As(err, &dup) || dup.ID != a.ID {
		t.Fatalf("Add() error = %v, want *DuplicateError for %s", err, a.ID)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d after rejected duplicate, want 2", c.Len())
	}

	// Overwrite replaces in place; End is not part of the id.
	longer := event(t, "Review", base, 3*time.Hour, nil)
	if _, err := c.Add(longer, true); err != nil {
		t.Fatalf("Add(overwrite) error = %v", err)
	}
	got := c.List()
	if len(got) != 2 || got[0].Duration() != 3*time.Hour || got[1].Title != "Other" {
		t.Errorf("overwrite did not replace in place: %+v", got)
	}
}

func TestRemove(t *testing.T) {
	c := New("work")
	a := event(t, "a", base, time.Hour, nil)
	b := event(t, "b", base.Add(time.Hour), time.Hour, nil)
	d := event(t, "d", base.Add(2*time.Hour), time.Hour, nil)
	for _, ev := range []model.Event{a, b, d} {
		c.Add(ev, false)
	}

	removed, err := c.Remove(b.ID)
	if err != nil || removed.ID != b.ID {
		t.Fatalf("Remove() = %v, %v", removed, err)
	}
	var nf *NotFoundError
	if _, err := c.Remove(b.ID); !errors.As(err, &nf) {
		t.Errorf("second Remove() error = %v, want *NotFoundError", err)
	}
	// Indexes after the removed slot still resolve.
	if got, err := c.Get(d.ID); err != nil || got.Title != "d" {
		t.Errorf("Get(d) after removal = %v, %v", got, err)
	}
	if n := c.RemoveAll(); n != 2 {
		t.Errorf("RemoveAll() = %d, want 2", n)
	}
	if _, err := c.Get(a.ID); !errors.As(err, &nf) {
		t.Errorf("Get() after RemoveAll error = %v", err)
	}
}

func TestLookup(t *testing.T) {
	c := New("work")
	a := event(t, "a", base, time.Hour, nil)
	c.Add(a, false)

	tests := []struct {
		name string
		ref  string
		ok   bool
	}{
		{"full id", a.ID.String(), true},
		{"short prefix", model.ShortID(a.ID), true},
		{"padded prefix", "  " + a.ID.String()[:6] + " ", true},
		{"unknown", "ffffffffffff", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Lookup(tt.ref)
			if tt.ok && (err != nil || got.ID != a.ID) {
				t.Errorf("Lookup(%q) = %v, %v", tt.ref, got, err)
			}
			var nf *NotFoundError
			if !tt.ok && !errors.As(err, &nf) {
				t.Errorf("Lookup(%q) error = %v, want *NotFoundError", tt.ref, err)
			}
		})
	}
}

func TestLookupAmbiguous(t *testing.T) {
	c := New("work")
	for i := 0; i < 40; i++ {
		c.Add(event(t, "e", base.Add(time.Duration(i)*time.Minute), 0, nil), false)
	}
	// With 40 ids over 16 leading hex digits some first digit repeats.
	counts := map[byte]int{}
	for _, ev := range c.List() {
		counts[ev.ID.String()[0]]++
	}
	for prefix, n := range counts {
		if n < 2 {
			continue
		}
		_, err := c.Lookup(string(prefix))
		var amb *AmbiguousError
		if !errors.As(err, &amb) || amb.Matches != n {
			t.Errorf("Lookup(%q) error = %v, want AmbiguousError with %d matches", prefix, err, n)
		}
		return
	}
	t.Fatal("no shared prefix among 40 ids")
}

func TestReplace(t *testing.T) {
	c := New("work")
	a := event(t, "a", base, time.Hour, nil)
	b := event(t, "b", base, time.Hour, nil)
	c.Add(a, false)
	c.Add(b, false)

	renamed := event(t, "a2", base, time.Hour, nil)
	if err := c.Replace(a.ID, renamed); err != nil {
		t.Fatal(err)
	}
	if got := c.List(); got[0].ID != renamed.ID || got[1].ID != b.ID {
		t.Errorf("Replace did not keep position: %+v", got)
	}
	var nf *NotFoundError
	if _, err := c.Get(a.ID); !errors.As(err, &nf) {
		t.Errorf("old id still resolves")
	}
	var dup *DuplicateError
	if err := c.Replace(renamed.ID, b); !errors.As(err, &dup) {
		t.Errorf("Replace onto existing id error = %v, want *DuplicateError", err)
	}
}

func TestRestoreRejectsDuplicates(t *testing.T) {
	a := event(t, "a", base, time.Hour, nil)
	if _, err := Restore("x", []model.Event{a, a}); err == nil {
		t.Errorf("Restore accepted duplicate ids")
	}
	c, err := Restore("x", []model.Event{a})
	if err != nil || c.Len() != 1 || c.Name() != "x" {
		t.Errorf("Restore() = %v, %v", c, err)
	}
}

func TestOverlaps(t *testing.T) {
	c := New("work")
	standup := event(t, "Standup", base, 15*time.Minute, &model.Recurrence{Frequency: model.Daily, Interval: 1, Count: 5})
	lunch := event(t, "Lunch", base.Add(3*time.Hour), time.Hour, nil)
	c.Add(standup, false)
	c.Add(lunch, false)

	w := recur.Window{From: base.AddDate(0, 0, -1), Until: base.AddDate(0, 0, 30)}

	tests := []struct {
		name string
		ev   model.Event
		want int
	}{
		{"hits third standup", event(t, "Dentist", base.AddDate(0, 0, 2).Add(10*time.Minute), time.Hour, nil), 1},
		{"starts when standup ends", event(t, "Focus", base.Add(15*time.Minute), time.Hour, nil), 0},
		{"point inside lunch", event(t, "Call", base.Add(3*time.Hour+30*time.Minute), 0, nil), 1},
		{"weekly hits standup and lunch", event(t, "Block", base.Add(-time.Hour), 5*time.Hour, &model.Recurrence{Frequency: model.Weekly, Interval: 1, Count: 2}), 2},
		{"after everything", event(t, "Late", base.AddDate(0, 0, 10), time.Hour, nil), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Overlaps(tt.ev, w, 100)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("Overlaps() = %d conflicts %+v, want %d", len(got), got, tt.want)
			}
		})
	}
}

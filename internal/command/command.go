// Package command exposes one entry point per calendar command. Callers
// parse their own arguments and render results; nothing here writes to a
// terminal or touches storage.
package command

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"pcal/internal/calendar"
	"pcal/internal/filter"
	"pcal/internal/ics"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

const (
	DefaultHorizon        = 365 * 24 * time.Hour
	DefaultMaxOccurrences = 5000

	// showNext is how many upcoming occurrences Show reports.
	showNext = 5
)

// Runner carries the settings shared by every command.
type Runner struct {
	// Now defaults to time.Now.
	Now       func() time.Time
	WeekStart time.Weekday
	// Location is used for day boundaries and floating iCalendar times.
	// Defaults to time.Local.
	Location *time.Location
	// Horizon caps open-ended windows for rules without COUNT or UNTIL.
	Horizon time.Duration
	// MaxOccurrences caps the occurrences expanded per event.
	MaxOccurrences int
}

func (r *Runner) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().In(r.location())
}

func (r *Runner) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *Runner) horizon() time.Duration {
	if r.Horizon <= 0 {
		return DefaultHorizon
	}
	return r.Horizon
}

func (r *Runner) limit() int {
	if r.MaxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return r.MaxOccurrences
}

// bound closes an open window for an unbounded rule at now+Horizon.
func (r *Runner) bound(ev model.Event, w recur.Window, now time.Time) recur.Window {
	if w.Bounded() || ev.Recurrence == nil || ev.Recurrence.Bounded() {
		return w
	}
	w.Until = now.Add(r.horizon())
	return w
}

// expand returns ev's occurrences in w, applying the horizon and the
// per-event cap.
func (r *Runner) expand(ev model.Event, w recur.Window, now time.Time) ([]time.Time, bool, error) {
	return recur.Expand(ev, r.bound(ev, w, now), r.limit())
}

type AddResult struct {
	Event    model.Event
	Overlaps []calendar.Overlap
}

// Add builds an event from p and inserts it. Overlaps with existing events
// within the horizon after its start are reported but do not fail the add.
func (r *Runner) Add(cal *calendar.Calendar, p model.EventParams, overwrite bool) (*AddResult, error) {
	ev, err := model.NewEvent(p)
	if err != nil {
		return nil, err
	}
	if _, err := cal.Add(ev, overwrite); err != nil {
		return nil, err
	}

	res := &AddResult{Event: ev}
	w := recur.Window{From: ev.Start, Until: ev.Start.Add(r.horizon())}
	overlaps, err := cal.Overlaps(ev, w, r.limit())
	if err != nil {
		appLog.Warn("overlap check failed", "event", model.ShortID(ev.ID), "err", err)
	}
	res.Overlaps = overlaps
	appLog.Debug("event added", "event", model.ShortID(ev.ID), "calendar", cal.Name(), "overlaps", len(overlaps))
	return res, nil
}

type ImportResult struct {
	Added      []model.Event
	Duplicates []model.Event
	Warnings   []ics.Warning
	// Failed lists the blocks that could not be decoded.
	Failed []ics.BlockError
}

// Import decodes iCalendar text from src and adds every valid event. A
// malformed block does not stop the others; in that case the result is
// returned together with the *ics.ParseError. Events already present are
// skipped unless overwrite is set.
func (r *Runner) Import(cal *calendar.Calendar, src io.Reader, overwrite bool) (*ImportResult, error) {
	parsed, perr := ics.Decode(src, ics.ParseOptions{Location: r.location()})
	res := &ImportResult{Warnings: parsed.Warnings}

	var pe *ics.ParseError
	if perr != nil {
		if !errors.As(perr, &pe) {
			return res, perr
		}
		res.Failed = pe.Blocks
	}

	for _, ev := range parsed.Events {
		if _, err := cal.Add(ev, overwrite); err != nil {
			var dup *calendar.DuplicateError
			if errors.As(err, &dup) {
				res.Duplicates = append(res.Duplicates, ev)
				continue
			}
			return res, err
		}
		res.Added = append(res.Added, ev)
	}

	appLog.Info("import completed",
		"calendar", cal.Name(),
		"added", len(res.Added),
		"duplicates", len(res.Duplicates),
		"failed", len(res.Failed),
		"warnings", len(res.Warnings),
	)
	if pe != nil {
		return res, pe
	}
	return res, nil
}

// Remove deletes the event identified by ref, a full ID or unique prefix.
func (r *Runner) Remove(cal *calendar.Calendar, ref string) (model.Event, error) {
	ev, err := cal.Lookup(ref)
	if err != nil {
		return model.Event{}, err
	}
	return cal.Remove(ev.ID)
}

// RemoveAll empties cal and returns how many events were removed.
func (r *Runner) RemoveAll(cal *calendar.Calendar) int {
	n := cal.RemoveAll()
	appLog.Info("calendar cleared", "calendar", cal.Name(), "removed", n)
	return n
}

// Entry is one event with its occurrences inside the list window.
type Entry struct {
	Event       model.Event
	Occurrences []time.Time
	// Truncated is set when MaxOccurrences cut the expansion short.
	Truncated bool
}

type ListResult struct {
	Filter  filter.Filter
	Window  recur.Window
	Entries []Entry
}

// Agenda flattens the result into occurrences ordered by start, then by
// event insertion order.
func (l *ListResult) Agenda() []model.Occurrence {
	var out []model.Occurrence
	for _, e := range l.Entries {
		for _, s := range e.Occurrences {
			out = append(out, e.Event.Occurrence(s))
		}
	}
	slices.SortStableFunc(out, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

// Len returns the number of matching occurrences.
func (l *ListResult) Len() int {
	n := 0
	for _, e := range l.Entries {
		n += len(e.Occurrences)
	}
	return n
}

// List expands every event of cal and keeps the occurrences matching f.
// Events without a match are left out. Entries follow insertion order.
func (r *Runner) List(cal *calendar.Calendar, f filter.Filter) (*ListResult, error) {
	now := r.now()
	w := f.Window(now, r.WeekStart)
	res := &ListResult{Filter: f, Window: w}

	for _, ev := range cal.List() {
		starts, truncated, err := r.expand(ev, w, now)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", model.ShortID(ev.ID), err)
		}
		if truncated {
			appLog.Warn("occurrences truncated", "event", model.ShortID(ev.ID), "limit", r.limit())
		}
		if len(starts) == 0 {
			continue
		}
		res.Entries = append(res.Entries, Entry{Event: ev, Occurrences: starts, Truncated: truncated})
	}
	return res, nil
}

type ShowResult struct {
	Event model.Event
	// Next holds upcoming occurrence starts from today on.
	Next []time.Time
}

// Show looks up one event and its next few occurrences.
func (r *Runner) Show(cal *calendar.Calendar, ref string) (*ShowResult, error) {
	ev, err := cal.Lookup(ref)
	if err != nil {
		return nil, err
	}
	now := r.now()
	w := filter.Filter{Kind: filter.Default}.Window(now, r.WeekStart)
	seq, err := recur.Occurrences(ev, r.bound(ev, w, now))
	if err != nil {
		return nil, err
	}
	res := &ShowResult{Event: ev}
	for s := range seq {
		res.Next = append(res.Next, s)
		if len(res.Next) == showNext {
			break
		}
	}
	return res, nil
}

// Changes lists the fields Edit should replace. Nil fields are kept.
type Changes struct {
	Title       *string
	Location    *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Duration    *time.Duration
	// Recurrence replaces the rule; ClearRecurrence drops it.
	Recurrence      *model.Recurrence
	ClearRecurrence bool
}

func (c Changes) empty() bool {
	return c.Title == nil && c.Location == nil && c.Description == nil && c.Start == nil && c.End == nil &&
		c.Duration == nil && c.Recurrence == nil && !c.ClearRecurrence
}

type EditResult struct {
	Old model.Event
	New model.Event
}

// Edit rebuilds the event identified by ref with ch applied. The rebuilt
// event gets the ID derived from its new fields and keeps its position.
// A moved start keeps the old duration unless End or Duration is given.
func (r *Runner) Edit(cal *calendar.Calendar, ref string, ch Changes) (*EditResult, error) {
	old, err := cal.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if ch.empty() {
		return nil, errors.New("edit: nothing to change")
	}

	p := old.Params()
	if ch.Title != nil {
		p.Title = *ch.Title
	}
	if ch.Location != nil {
		p.Location = *ch.Location
	}
	if ch.Description != nil {
		p.Description = *ch.Description
	}
	if ch.Start != nil {
		p.Start = *ch.Start
	}
	switch {
	case ch.End != nil:
		p.End, p.Duration = *ch.End, 0
	case ch.Duration != nil:
		p.End, p.Duration = time.Time{}, *ch.Duration
	default:
		p.End, p.Duration = time.Time{}, old.Duration()
	}
	switch {
	case ch.ClearRecurrence:
		p.Recurrence = nil
	case ch.Recurrence != nil:
		rec := *ch.Recurrence
		p.Recurrence = &rec
	}

	ev, err := model.NewEvent(p)
	if err != nil {
		return nil, err
	}
	if err := cal.Replace(old.ID, ev); err != nil {
		return nil, err
	}
	appLog.Debug("event edited", "old", model.ShortID(old.ID), "new", model.ShortID(ev.ID))
	return &EditResult{Old: old, New: ev}, nil
}

// Export writes every event of cal, in insertion order, as one VCALENDAR.
func (r *Runner) Export(cal *calendar.Calendar, w io.Writer) error {
	return ics.Encode(w, cal.List(), ics.EncodeOptions{Stamp: r.now(), Name: cal.Name()})
}

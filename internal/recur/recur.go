// Package recur expands events into concrete occurrence start times.
package recur

import (
	"fmt"
	"iter"
	"time"

	"pcal/internal/model"
)

// Window is an inclusive [From, Until] range. A zero bound is open on that
// side.
type Window struct {
	From  time.Time
	Until time.Time
}

func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

// Bounded reports whether the window has an upper bound.
func (w Window) Bounded() bool {
	return !w.Until.IsZero()
}

// RecurrenceBoundError is returned when expanding an unbounded rule would
// require a window without an upper bound.
type RecurrenceBoundError struct {
	EventID model.ID
	Rule    string
}

func (e *RecurrenceBoundError) Error() string {
	return fmt.Sprintf("recurrence %s of event %s is unbounded and the window has no end", e.Rule, model.ShortID(e.EventID))
}

// Occurrences returns the start times of ev that fall within w, in strictly
// increasing order. The sequence is lazy and may be ranged over repeatedly.
func Occurrences(ev model.Event, w Window) (iter.Seq[time.Time], error) {
	if ev.Recurrence == nil {
		return func(yield func(time.Time) bool) {
			if w.Contains(ev.Start) {
				yield(ev.Start)
			}
		}, nil
	}

	rule := *ev.Recurrence
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if !rule.Bounded() && !w.Bounded() {
		return nil, &RecurrenceBoundError{EventID: ev.ID, Rule: rule.String()}
	}

	anchor := ev.Start
	return func(yield func(time.Time) bool) {
		for n := skip(anchor, rule, w.From); ; n++ {
			if rule.Count > 0 && n >= rule.Count {
				return
			}
			t := rule.Step(anchor, n)
			if !rule.Until.IsZero() && t.After(rule.Until) {
				return
			}
			if w.Bounded() && t.After(w.Until) {
				return
			}
			if !w.From.IsZero() && t.Before(w.From) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}, nil
}

// Expand collects at most limit occurrences of ev within w. truncated is true
// when more occurrences existed. A limit of zero or less means no cap.
func Expand(ev model.Event, w Window, limit int) (out []time.Time, truncated bool, err error) {
	seq, err := Occurrences(ev, w)
	if err != nil {
		return nil, false, err
	}
	for t := range seq {
		if limit > 0 && len(out) == limit {
			return out, true, nil
		}
		out = append(out, t)
	}
	return out, false, nil
}

// skip returns an index whose candidate is known to lie before from, so the
// iteration does not walk every step from a distant anchor.
func skip(anchor time.Time, r model.Recurrence, from time.Time) int {
	if from.IsZero() || !from.After(anchor) {
		return 0
	}
	var units int
	switch r.Frequency {
	case model.Daily:
		units = int(from.Sub(anchor) / (24 * time.Hour))
	case model.Weekly:
		units = int(from.Sub(anchor) / (7 * 24 * time.Hour))
	case model.Monthly:
		units = monthsBetween(anchor, from)
	case model.Yearly:
		units = monthsBetween(anchor, from) / 12
	}
	n := units/r.Interval - 1
	if n < 0 {
		return 0
	}
	return n
}

func monthsBetween(a, b time.Time) int {
	b = b.In(a.Location())
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

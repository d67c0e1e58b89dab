package model

import (
	"strconv"
	"strings"
	"time"
)

type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "UNKNOWN"
	}
}

func (f Frequency) IsValid() bool {
	return f >= Daily && f <= Yearly
}

// ParseFrequency accepts the RRULE spelling in any case.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	default:
		return 0, &ValidationError{Field: "frequency", Reason: "unsupported value " + strconv.Quote(s)}
	}
}

// Recurrence is the supported RRULE subset. Count == 0 and a zero Until mean
// the respective bound is absent.
type Recurrence struct {
	Frequency Frequency
	Interval  int
	Count     int
	Until     time.Time
}

func (r Recurrence) Validate() error {
	if !r.Frequency.IsValid() {
		return &ValidationError{Field: "frequency", Reason: "must be one of DAILY, WEEKLY, MONTHLY, YEARLY"}
	}
	if r.Interval <= 0 {
		return &ValidationError{Field: "interval", Reason: "must be positive"}
	}
	if r.Count < 0 {
		return &ValidationError{Field: "count", Reason: "must not be negative"}
	}
	return nil
}

// Bounded reports whether the rule itself limits the number of occurrences.
func (r Recurrence) Bounded() bool {
	return r.Count > 0 || !r.Until.IsZero()
}

func (r Recurrence) Equal(o Recurrence) bool {
	return r.Frequency == o.Frequency &&
		r.Interval == o.Interval &&
		r.Count == o.Count &&
		r.Until.Equal(o.Until)
}

// String renders the rule in RRULE value syntax. Both COUNT and UNTIL are
// written when present; encoders that must emit only one decide elsewhere.
func (r Recurrence) String() string {
	parts := []string{"FREQ=" + r.Frequency.String()}
	if r.Interval != 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(UTCLayout))
	}
	return strings.Join(parts, ";")
}

// UTCLayout is the iCalendar UTC date-time form.
const UTCLayout = "20060102T150405Z"

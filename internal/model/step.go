package model

import "time"

// Step returns the n-th (zero-based) candidate start of the rule anchored at
// anchor, ignoring COUNT and UNTIL. Each candidate is computed from the
// anchor so clamped days never drift: Jan 31 +1 month is Feb 29, +2 months
// is Mar 31.
func (r Recurrence) Step(anchor time.Time, n int) time.Time {
	k := n * r.Interval
	switch r.Frequency {
	case Daily:
		return anchor.AddDate(0, 0, k)
	case Weekly:
		return anchor.AddDate(0, 0, 7*k)
	case Monthly:
		return addMonthsClamped(anchor, k)
	case Yearly:
		return addMonthsClamped(anchor, 12*k)
	default:
		return anchor
	}
}

// canonical keeps only the bound that ends the series when the rule carries
// both COUNT and UNTIL. The occurrence set is unchanged.
func (r Recurrence) canonical(anchor time.Time) Recurrence {
	if r.Count == 0 || r.Until.IsZero() {
		return r
	}
	if r.Step(anchor, r.Count-1).After(r.Until) {
		r.Count = 0
	} else {
		r.Until = time.Time{}
	}
	return r
}

// addMonthsClamped moves t by months calendar months. When the day of month
// does not exist in the target month it is clamped to the month's last day.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	year := y + floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12 + 1)
	return time.Date(year, month, clampDay(year, month, d),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// clampDay limits day to the number of days in the given month.
func clampDay(year int, month time.Month, day int) int {
	if last := daysIn(year, month); day > last {
		return last
	}
	return day
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

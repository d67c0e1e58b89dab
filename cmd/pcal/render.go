package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"pcal/internal/calendar"
	"pcal/internal/command"
	"pcal/internal/model"
	"pcal/internal/store"
)

const (
	dayLayout  = "Mon 2006-01-02"
	timeLayout = "15:04"
	fullLayout = "2006-01-02 15:04 -07:00"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// span renders an occurrence's time range, collapsing the end date when it
// falls on the start day.
func span(start, end time.Time) string {
	switch {
	case start.Equal(end):
		return start.Format(timeLayout)
	case start.Year() == end.Year() && start.YearDay() == end.YearDay():
		return start.Format(timeLayout) + "-" + end.Format(timeLayout)
	default:
		return start.Format(timeLayout) + "-" + end.Format("01-02 "+timeLayout)
	}
}

func describeRule(r *model.Recurrence) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(r.Frequency.String()))
	if r.Interval > 1 {
		fmt.Fprintf(&b, " every %d", r.Interval)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ", %d times", r.Count)
	}
	if !r.Until.IsZero() {
		fmt.Fprintf(&b, ", until %s", r.Until.Format(time.DateOnly))
	}
	return b.String()
}

// printList prints every matching event followed by its occurrences.
func printList(w io.Writer, res *command.ListResult, loc *time.Location) {
	if len(res.Entries) == 0 {
		fmt.Fprintf(w, "no events (%s)\n", res.Filter)
		return
	}
	tw := newTable(w)
	for _, e := range res.Entries {
		ev := e.Event
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", model.ShortID(ev.ID), ev.Title, ev.Location, describeRule(ev.Recurrence))
		for _, s := range e.Occurrences {
			s = s.In(loc)
			fmt.Fprintf(tw, "\t  %s\t%s\t\n", s.Format(dayLayout), span(s, s.Add(ev.Duration())))
		}
		if e.Truncated {
			fmt.Fprintf(tw, "\t  ...\t(more occurrences not shown)\t\n")
		}
	}
	tw.Flush()
	fmt.Fprintf(w, "%d occurrence(s) of %d event(s) (%s)\n", res.Len(), len(res.Entries), res.Filter)
}

// printAgenda prints one line per occurrence grouped by day.
func printAgenda(w io.Writer, res *command.ListResult, loc *time.Location) {
	agenda := res.Agenda()
	if len(agenda) == 0 {
		fmt.Fprintf(w, "nothing scheduled (%s)\n", res.Filter)
		return
	}
	tw := newTable(w)
	var lastDay string
	for _, occ := range agenda {
		start, end := occ.Start.In(loc), occ.End.In(loc)
		day := start.Format(dayLayout)
		if day != lastDay {
			fmt.Fprintf(tw, "%s\t\t\t\n", day)
			lastDay = day
		}
		where := ""
		if occ.Location != "" {
			where = "@ " + occ.Location
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", span(start, end), occ.Title, where, model.ShortID(occ.EventID))
	}
	tw.Flush()
}

func printShow(w io.Writer, res *command.ShowResult) {
	ev := res.Event
	tw := newTable(w)
	fmt.Fprintf(tw, "id\t%s\n", ev.ID)
	fmt.Fprintf(tw, "title\t%s\n", ev.Title)
	if ev.Location != "" {
		fmt.Fprintf(tw, "location\t%s\n", ev.Location)
	}
	if ev.Description != "" {
		for i, line := range strings.Split(ev.Description, "\n") {
			label := ""
			if i == 0 {
				label = "description"
			}
			fmt.Fprintf(tw, "%s\t%s\n", label, line)
		}
	}
	fmt.Fprintf(tw, "start\t%s\n", ev.Start.Format(fullLayout))
	fmt.Fprintf(tw, "end\t%s\n", ev.End.Format(fullLayout))
	fmt.Fprintf(tw, "duration\t%s\n", ev.Duration())
	if ev.Recurrence != nil {
		fmt.Fprintf(tw, "repeats\t%s\n", describeRule(ev.Recurrence))
		fmt.Fprintf(tw, "rrule\t%s\n", ev.Recurrence)
	}
	for i, s := range res.Next {
		label := ""
		if i == 0 {
			label = "next"
		}
		fmt.Fprintf(tw, "%s\t%s\n", label, s.Format(fullLayout))
	}
	tw.Flush()
}

func printOverlaps(w io.Writer, overlaps []calendar.Overlap) {
	if len(overlaps) == 0 {
		return
	}
	fmt.Fprintf(w, "warning: overlaps %d occurrence(s):\n", len(overlaps))
	const shown = 5
	for i, o := range overlaps {
		if i == shown {
			fmt.Fprintf(w, "  ... and %d more\n", len(overlaps)-shown)
			break
		}
		fmt.Fprintf(w, "  %s %s (%s)\n", o.Existing.Start.Format(fullLayout), o.Existing.Title, model.ShortID(o.Existing.EventID))
	}
}

func printImport(w io.Writer, path string, res *command.ImportResult) {
	fmt.Fprintf(w, "%s: %d added", path, len(res.Added))
	if n := len(res.Duplicates); n > 0 {
		fmt.Fprintf(w, ", %d already present (use -force to overwrite)", n)
	}
	if n := len(res.Failed); n > 0 {
		fmt.Fprintf(w, ", %d failed", n)
	}
	fmt.Fprintln(w)
	for _, b := range res.Failed {
		fmt.Fprintf(w, "  error: %s\n", b.Error())
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  partially supported: %s\n", warn)
	}
}

func printHistory(w io.Writer, revs []store.Revision) {
	tw := newTable(w)
	for _, r := range revs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Hash[:7], r.When.Format(fullLayout), r.Message)
	}
	tw.Flush()
}

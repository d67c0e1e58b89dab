package ics

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "pcal/internal/log"
	"pcal/internal/model"
)

const (
	utcLayout      = "20060102T150405Z"
	floatingLayout = "20060102T150405"
	dateLayout     = "20060102"

	// offsetProperty carries the UTC offset the event was stored with, so an
	// export/import cycle restores it even though DTSTART is written in UTC.
	offsetProperty = ical.ComponentProperty("X-PCAL-UTC-OFFSET")
)

// ParseOptions controls how values without an explicit zone are read.
type ParseOptions struct {
	// Location applies to floating DATE-TIME and DATE values, and to TZIDs
	// that cannot be resolved. If nil, time.Local is used.
	Location *time.Location
}

// Result holds the events decoded from an iCalendar payload.
type Result struct {
	Events   []model.Event
	Warnings []Warning
}

// Partial reports whether some input was accepted but ignored.
func (r *Result) Partial() bool {
	return len(r.Warnings) > 0
}

// Decode reads all of r and parses it with Parse.
func Decode(r io.Reader, opts ParseOptions) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{}, &ParseError{Err: err}
	}
	return Parse(data, opts)
}

// Parse decodes every VEVENT in data. Each block is parsed on its own, so a
// malformed block is reported in the returned *ParseError while the other
// blocks still end up in Result.Events. The Result is never nil.
func Parse(data []byte, opts ParseOptions) (*Result, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	res := &Result{}

	blocks, err := splitBlocks(data)
	if err != nil {
		return res, &ParseError{Err: err}
	}
	if len(blocks) == 0 {
		return res, &ParseError{Err: errors.New("no VEVENT found")}
	}

	var perr ParseError
	for _, b := range blocks {
		ev, warns, summary, err := decodeBlock(b, opts)
		if err != nil {
			be := BlockError{Index: b.index, Line: b.line, Summary: summary, Err: err}
			appLog.Error("ics vevent parse failed", err, "block", b.index, "line", b.line)
			perr.Blocks = append(perr.Blocks, be)
			continue
		}
		res.Events = append(res.Events, ev)
		res.Warnings = append(res.Warnings, warns...)
	}

	appLog.Info("ics parse completed",
		"blocks", len(blocks),
		"event_count", len(res.Events),
		"error_count", len(perr.Blocks),
		"warning_count", len(res.Warnings),
	)
	if len(perr.Blocks) > 0 {
		return res, &perr
	}
	return res, nil
}

// block is the raw text of one BEGIN:VEVENT..END:VEVENT section.
type block struct {
	index  int
	line   int
	lines  []string
	closed bool
}

// splitBlocks cuts the payload into VEVENT sections without interpreting
// them. An unterminated section is returned with closed == false.
func splitBlocks(data []byte) ([]block, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		out     []block
		current *block
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		marker := strings.ToUpper(strings.TrimSpace(line))

		switch {
		case marker == "BEGIN:VEVENT":
			if current != nil {
				out = append(out, *current)
			}
			current = &block{index: len(out) + 1, line: lineNo, lines: []string{line}}
		case marker == "END:VEVENT" && current != nil:
			current.lines = append(current.lines, line)
			current.closed = true
			out = append(out, *current)
			current = nil
		case current != nil:
			current.lines = append(current.lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		out = append(out, *current)
	}
	return out, nil
}

func decodeBlock(b block, opts ParseOptions) (model.Event, []Warning, string, error) {
	if !b.closed {
		return model.Event{}, nil, "", errors.New("missing END:VEVENT")
	}

	var buf strings.Builder
	buf.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ProductID + "\r\n")
	for _, l := range b.lines {
		buf.WriteString(l)
		buf.WriteString("\r\n")
	}
	buf.WriteString("END:VCALENDAR\r\n")

	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		return model.Event{}, nil, "", err
	}
	events := cal.Events()
	if len(events) != 1 {
		return model.Event{}, nil, "", fmt.Errorf("expected one VEVENT, found %d", len(events))
	}
	return decodeVEvent(b.index, events[0], opts)
}

func decodeVEvent(index int, ve *ical.VEvent, opts ParseOptions) (model.Event, []Warning, string, error) {
	var warns []Warning

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = strings.TrimSpace(unescapeText(p.Value))
	}
	if summary == "" {
		return model.Event{}, nil, "", errors.New("missing SUMMARY")
	}
	warn := func(prop, msg string) {
		warns = append(warns, Warning{Index: index, Summary: summary, Property: prop, Message: msg})
	}

	params := model.EventParams{Title: summary}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		params.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		params.Description = unescapeText(p.Value)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || strings.TrimSpace(startProp.Value) == "" {
		return model.Event{}, nil, summary, errors.New("missing DTSTART")
	}
	start, allDay, err := parseDateTime("DTSTART", startProp, opts.Location, warn)
	if err != nil {
		return model.Event{}, nil, summary, err
	}
	if p := ve.GetProperty(offsetProperty); p != nil {
		loc, err := parseOffset(p.Value)
		if err != nil {
			warn(string(offsetProperty), err.Error())
		} else {
			start = start.In(loc)
		}
	}
	params.Start = start

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := parseDateTime("DTEND", ve.GetProperty(ical.ComponentPropertyDtEnd), opts.Location, warn)
		if err != nil {
			return model.Event{}, nil, summary, err
		}
		params.End = end
	case ve.GetProperty("DURATION") != nil:
		d, err := parseDuration(ve.GetProperty("DURATION").Value)
		if err != nil {
			return model.Event{}, nil, summary, fmt.Errorf("DURATION: %w", err)
		}
		params.Duration = d
	case allDay:
		params.Duration = 24 * time.Hour
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rec, ignored, err := decodeRule(p.Value, start.Location())
		if err != nil {
			return model.Event{}, nil, summary, fmt.Errorf("RRULE: %w", err)
		}
		for _, part := range ignored {
			warn("RRULE", "unsupported part "+part+" ignored")
		}
		params.Recurrence = rec
	}
	if len(ve.GetProperties(ical.ComponentPropertyRrule)) > 1 {
		warn("RRULE", "only the first RRULE is used")
	}
	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		warn("EXDATE", "exception dates are not supported and were ignored")
	}

	ev, err := model.NewEvent(params)
	if err != nil {
		return model.Event{}, nil, summary, err
	}
	return ev, warns, summary, nil
}

// parseDateTime reads a DTSTART/DTEND style property. allDay is true for
// DATE values, which are placed at midnight in def.
func parseDateTime(name string, p *ical.IANAProperty, def *time.Location, warn func(prop, msg string)) (t time.Time, allDay bool, err error) {
	v := strings.TrimSpace(p.Value)

	isDate := len(v) == len(dateLayout)
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	if isDate {
		t, err = time.ParseInLocation(dateLayout, v, def)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%s: %q is not a YYYYMMDD date", name, v)
		}
		return t, true, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err = time.Parse(utcLayout, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%s: %q does not match YYYYMMDDTHHMMSSZ", name, v)
		}
		return t, false, nil
	}

	loc := def
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, lerr := time.LoadLocation(tzs[0]); lerr == nil {
			loc = l
		} else {
			warn(name, fmt.Sprintf("unknown TZID %q, using %s", tzs[0], def))
		}
	}
	t, err = time.ParseInLocation(floatingLayout, v, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %q does not match YYYYMMDDTHHMMSS", name, v)
	}
	// Resolve the zone to the single offset in effect at this instant.
	_, off := t.Zone()
	return t.In(time.FixedZone("", off)), false, nil
}

func parseOffset(v string) (*time.Location, error) {
	t, err := time.Parse("-0700", strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("offset %q does not match +HHMM", v)
	}
	_, off := t.Zone()
	return time.FixedZone("", off), nil
}

package ics

import (
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"pcal/internal/model"
)

func mustEvent(t *testing.T, p model.EventParams) model.Event {
	t.Helper()
	ev, err := model.NewEvent(p)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func TestRoundTrip(t *testing.T) {
	cest := time.FixedZone("", 2*3600)
	events := []model.Event{
		mustEvent(t, model.EventParams{
			Title:       "Dentist",
			Location:    "Main Street 4",
			Description: "Referral, card; floor 2\nask at the desk",
			Start:       time.Date(2024, 6, 10, 15, 30, 0, 0, cest),
			Duration:    30 * time.Minute,
		}),
		mustEvent(t, model.EventParams{
			Title:    "Team sync",
			Start:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			Duration: time.Hour,
			Recurrence: &model.Recurrence{
				Frequency: model.Weekly, Interval: 2, Count: 10,
			},
		}),
		mustEvent(t, model.EventParams{
			Title:    "Rent",
			Start:    time.Date(2024, 1, 31, 8, 0, 0, 0, time.FixedZone("", -5*3600)),
			Duration: 0,
			Recurrence: &model.Recurrence{
				Frequency: model.Monthly, Interval: 1,
				Until: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			},
		}),
		mustEvent(t, model.EventParams{
			Title:    "Backup",
			Start:    time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
			Duration: 2 * time.Hour,
			Recurrence: &model.Recurrence{
				Frequency: model.Daily, Interval: 1,
			},
		}),
	}

	text := Marshal(events, EncodeOptions{Name: "personal"})
	if want := `DESCRIPTION:Referral\, card\; floor 2\nask at the desk` + "\r\n"; !strings.Contains(text, want) {
		t.Errorf("encoded text lacks %q:\n%s", want, text)
	}
	res, err := Parse([]byte(text), ParseOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, text)
	}
	if res.Partial() {
		t.Errorf("round trip produced warnings: %v", res.Warnings)
	}
	if len(res.Events) != len(events) {
		t.Fatalf("parsed %d events, want %d", len(res.Events), len(events))
	}
	for i := range events {
		if !res.Events[i].Equal(events[i]) {
			t.Errorf("event %d differs after round trip:\n got  %+v\n want %+v", i, res.Events[i], events[i])
		}
	}
}

func TestEncodeFormat(t *testing.T) {
	ev := mustEvent(t, model.EventParams{
		Title:    "Standup",
		Start:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("", 3600)),
		Duration: 15 * time.Minute,
		Recurrence: &model.Recurrence{
			Frequency: model.Daily, Interval: 1, Count: 5,
		},
	})
	text := Marshal([]model.Event{ev}, EncodeOptions{Stamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})

	for _, want := range []string{
		"BEGIN:VEVENT",
		"UID:" + ev.ID.String(),
		"SUMMARY:Standup",
		"DTSTART:20240101T090000Z",
		"DTEND:20240101T091500Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"X-PCAL-UTC-OFFSET:+0100",
		"END:VEVENT",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("encoded text lacks %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "LOCATION") || strings.Contains(text, "DESCRIPTION") {
		t.Errorf("empty location or description was encoded:\n%s", text)
	}
	if strings.Contains(text, "INTERVAL") {
		t.Errorf("INTERVAL=1 was encoded:\n%s", text)
	}
}

func TestEncodeRuleBothBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rec  model.Recurrence
		want string
	}{
		{
			name: "count ends first",
			rec:  model.Recurrence{Frequency: model.Daily, Interval: 1, Count: 3, Until: start.AddDate(0, 0, 10)},
			want: "RRULE:FREQ=DAILY;COUNT=3\r\n",
		},
		{
			name: "until ends first",
			rec:  model.Recurrence{Frequency: model.Daily, Interval: 1, Count: 30, Until: start.AddDate(0, 0, 2)},
			want: "RRULE:FREQ=DAILY;UNTIL=20240103T090000Z\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			ev := mustEvent(t, model.EventParams{Title: "x", Start: start, Duration: time.Hour, Recurrence: &rec})
			text := Marshal([]model.Event{ev}, EncodeOptions{})
			if !strings.Contains(text, tt.want) {
				t.Fatalf("Marshal() missing %q:\n%s", tt.want, text)
			}
			res, err := Parse([]byte(text), ParseOptions{Location: time.UTC})
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Events[0]; got.ID != ev.ID || !got.Equal(ev) {
				t.Errorf("re-imported %v, want %v", got, ev)
			}
		})
	}
}

const threeBlocks = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:1
SUMMARY:First
DTSTART:20240101T090000Z
DTEND:20240101T100000Z
END:VEVENT
BEGIN:VEVENT
UID:2
SUMMARY:Second
DTSTART:2024-01-02 09:00
END:VEVENT
BEGIN:VEVENT
UID:3
SUMMARY:Third
DTSTART:20240103T090000Z
DURATION:PT45M
END:VEVENT
END:VCALENDAR
`

func TestParseKeepsValidBlocks(t *testing.T) {
	res, err := Parse([]byte(threeBlocks), ParseOptions{Location: time.UTC})

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Blocks) != 1 || perr.Blocks[0].Index != 2 {
		t.Fatalf("block errors = %+v, want one error for block 2", perr.Blocks)
	}
	if perr.Blocks[0].Summary != "Second" {
		t.Errorf("block error summary = %q, want Second", perr.Blocks[0].Summary)
	}
	if len(res.Events) != 2 {
		t.Fatalf("parsed %d events, want 2", len(res.Events))
	}
	if res.Events[0].Title != "First" || res.Events[1].Title != "Third" {
		t.Errorf("titles = %q, %q; want First, Third", res.Events[0].Title, res.Events[1].Title)
	}
	if d := res.Events[1].Duration(); d != 45*time.Minute {
		t.Errorf("DURATION decoded as %v, want 45m", d)
	}
}

func TestParseUnterminatedBlock(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:One",
		"DTSTART:20240101T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Broken",
		"DTSTART:20240102T090000Z",
		"BEGIN:VEVENT",
		"SUMMARY:Three",
		"DTSTART:20240103T090000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	res, err := Parse([]byte(input), ParseOptions{Location: time.UTC})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if len(perr.Blocks) != 1 || perr.Blocks[0].Index != 2 || perr.Blocks[0].Line != 6 {
		t.Errorf("block errors = %+v, want block 2 at line 6", perr.Blocks)
	}
	if len(res.Events) != 2 {
		t.Errorf("parsed %d events, want 2", len(res.Events))
	}
}

func TestParseRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		props string
		want  string
	}{
		{"missing summary", "DTSTART:20240101T090000Z", "missing SUMMARY"},
		{"missing dtstart", "SUMMARY:x", "missing DTSTART"},
		{"bad utc", "SUMMARY:x\nDTSTART:20240101T0900Z", "does not match YYYYMMDDTHHMMSSZ"},
		{"bad date", "SUMMARY:x\nDTSTART;VALUE=DATE:2024011", "is not a YYYYMMDD date"},
		{"end before start", "SUMMARY:x\nDTSTART:20240101T090000Z\nDTEND:20240101T080000Z", "end"},
		{"hourly", "SUMMARY:x\nDTSTART:20240101T090000Z\nRRULE:FREQ=HOURLY", "not supported"},
		{"zero interval", "SUMMARY:x\nDTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;INTERVAL=0", "INTERVAL"},
		{"no freq", "SUMMARY:x\nDTSTART:20240101T090000Z\nRRULE:COUNT=3", "FREQ is required"},
		{"bad duration", "SUMMARY:x\nDTSTART:20240101T090000Z\nDURATION:1 hour", "DURATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "BEGIN:VEVENT\n" + tt.props + "\nEND:VEVENT\n"
			res, err := Parse([]byte(input), ParseOptions{Location: time.UTC})
			var perr *ParseError
			if !errors.As(err, &perr) || len(perr.Blocks) != 1 {
				t.Fatalf("Parse() error = %v, want one block error", err)
			}
			if !strings.Contains(perr.Blocks[0].Err.Error(), tt.want) {
				t.Errorf("block error = %v, want it to mention %q", perr.Blocks[0].Err, tt.want)
			}
			if len(res.Events) != 0 {
				t.Errorf("got %d events from an invalid block", len(res.Events))
			}
		})
	}
}

func TestParseUnsupportedRulePartsAreReported(t *testing.T) {
	input := "BEGIN:VEVENT\nSUMMARY:Yoga\nDTSTART:20240101T180000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE;WKST=MO;COUNT=4\nEND:VEVENT\n"
	res, err := Parse([]byte(input), ParseOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !res.Partial() {
		t.Fatalf("unsupported parts were not reported")
	}
	var props []string
	for _, w := range res.Warnings {
		props = append(props, w.Message)
	}
	joined := strings.Join(props, ",")
	if !strings.Contains(joined, "BYDAY") || !strings.Contains(joined, "WKST") {
		t.Errorf("warnings = %v, want BYDAY and WKST", res.Warnings)
	}
	rec := res.Events[0].Recurrence
	if rec == nil || rec.Frequency != model.Weekly || rec.Count != 4 || rec.Interval != 1 {
		t.Errorf("recurrence = %+v, want weekly count 4 interval 1", rec)
	}
}

func TestParseDateAndZones(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VEVENT",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20240704",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Berlin call",
		"DTSTART;TZID=Europe/Berlin:20240701T100000",
		"DTEND;TZID=Europe/Berlin:20240701T110000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Floating",
		"DTSTART:20240701T100000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Mars",
		"DTSTART;TZID=Mars/Olympus:20240701T100000",
		"END:VEVENT",
	}, "\n")
	local := time.FixedZone("", -4*3600)
	res, err := Parse([]byte(input), ParseOptions{Location: local})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 4 {
		t.Fatalf("parsed %d events, want 4", len(res.Events))
	}

	holiday := res.Events[0]
	if !holiday.Start.Equal(time.Date(2024, 7, 4, 0, 0, 0, 0, local)) || holiday.Duration() != 24*time.Hour {
		t.Errorf("all-day event = %v + %v", holiday.Start, holiday.Duration())
	}

	berlin := res.Events[1]
	if !berlin.Start.Equal(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("TZID start = %v, want 08:00Z", berlin.Start)
	}
	if _, off := berlin.Start.Zone(); off != 2*3600 {
		t.Errorf("TZID offset = %d, want 7200", off)
	}

	floating := res.Events[2]
	if !floating.Start.Equal(time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("floating start = %v, want 14:00Z", floating.Start)
	}

	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "Mars/Olympus") {
		t.Errorf("warnings = %v, want one unknown TZID warning", res.Warnings)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse([]byte("BEGIN:VCALENDAR\nEND:VCALENDAR\n"), ParseOptions{})
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Err == nil {
		t.Errorf("Parse() error = %v, want ParseError without blocks", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"+PT15S", 15 * time.Second, false},
		{"PT0S", 0, false},
		{"-PT1H", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"1H", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextEscaping(t *testing.T) {
	in := "Lunch, then; walk\\home\nlater"
	esc := escapeText(in)
	if esc != `Lunch\, then\; walk\\home\nlater` {
		t.Errorf("escapeText() = %q", esc)
	}
	if got := unescapeText(esc); got != in {
		t.Errorf("unescapeText() = %q, want %q", got, in)
	}
	if got := unescapeText("plain"); got != "plain" {
		t.Errorf("unescapeText(plain) = %q", got)
	}
}

func TestMarshalEvent(t *testing.T) {
	ev := mustEvent(t, model.EventParams{Title: "Solo", Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)})
	text := MarshalEvent(ev, EncodeOptions{})
	if !strings.HasPrefix(text, "BEGIN:VEVENT") || !strings.HasSuffix(text, "END:VEVENT\r\n") {
		t.Errorf("MarshalEvent() = %q", text)
	}
}

package ics

import (
	"fmt"
	"strings"
)

// BlockError describes why one VEVENT block could not be decoded.
type BlockError struct {
	// Index is the 1-based position of the block in the input.
	Index int
	// Line is the 1-based line of the block's BEGIN:VEVENT.
	Line    int
	Summary string
	Err     error
}

func (e BlockError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("vevent #%d (line %d, %q): %v", e.Index, e.Line, e.Summary, e.Err)
	}
	return fmt.Sprintf("vevent #%d (line %d): %v", e.Index, e.Line, e.Err)
}

func (e BlockError) Unwrap() error {
	return e.Err
}

// ParseError aggregates per-block failures. Blocks that decoded fine are
// still returned next to it.
type ParseError struct {
	Blocks []BlockError
	// Err is set for failures that are not tied to a block.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil && len(e.Blocks) == 0 {
		return "ics: " + e.Err.Error()
	}
	msgs := make([]string, 0, len(e.Blocks))
	for _, b := range e.Blocks {
		msgs = append(msgs, b.Error())
	}
	return fmt.Sprintf("ics: %d malformed vevent block(s): %s", len(e.Blocks), strings.Join(msgs, "; "))
}

func (e *ParseError) Unwrap() []error {
	errs := make([]error, 0, len(e.Blocks)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, b := range e.Blocks {
		errs = append(errs, b)
	}
	return errs
}

// Warning records input that was accepted but not fully honored, such as
// RRULE parts outside FREQ, INTERVAL, COUNT and UNTIL.
type Warning struct {
	Index    int
	Summary  string
	Property string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("vevent #%d (%q): %s: %s", w.Index, w.Summary, w.Property, w.Message)
}

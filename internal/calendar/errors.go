package calendar

import (
	"fmt"

	"pcal/internal/model"
)

// DuplicateError is returned when an event with the same ID already exists.
type DuplicateError struct {
	ID    model.ID
	Title string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("event %s (%q) already in this calendar", model.ShortID(e.ID), e.Title)
}

// NotFoundError is returned for an unknown event ID or prefix.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event %q not found", e.Ref)
}

// AmbiguousError is returned when an ID prefix matches several events.
type AmbiguousError struct {
	Ref     string
	Matches int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("event prefix %q matches %d events", e.Ref, e.Matches)
}

// Package calendar holds an in-memory, insertion-ordered set of events.
// Loading and saving is left to the store package.
package calendar

import (
	"strings"

	"pcal/internal/model"
)

// Calendar is a named collection of events, unique by ID. It is not safe
// for concurrent use; callers check a calendar out for one command at a time.
type Calendar struct {
	name   string
	events []model.Event
	index  map[model.ID]int
}

func New(name string) *Calendar {
	return &Calendar{
		name:  name,
		index: make(map[model.ID]int),
	}
}

// Restore rebuilds a calendar from persisted events, keeping their order.
// IDs are taken as stored.
func Restore(name string, events []model.Event) (*Calendar, error) {
	c := New(name)
	for _, ev := range events {
		if _, err := c.Add(ev, false); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Calendar) Name() string {
	return c.name
}

func (c *Calendar) Len() int {
	return len(c.events)
}

// Add inserts ev. An event with the same ID is a DuplicateError unless
// overwrite is set, in which case it is replaced in place.
func (c *Calendar) Add(ev model.Event, overwrite bool) (model.ID, error) {
	if i, ok := c.index[ev.ID]; ok {
		if !overwrite {
			return ev.ID, &DuplicateError{ID: ev.ID, Title: c.events[i].Title}
		}
		c.events[i] = ev
		return ev.ID, nil
	}
	c.index[ev.ID] = len(c.events)
	c.events = append(c.events, ev)
	return ev.ID, nil
}

// Get returns the event with the given ID.
func (c *Calendar) Get(id model.ID) (model.Event, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Event{}, &NotFoundError{Ref: id.String()}
	}
	return c.events[i], nil
}

// Lookup resolves a full ID or a unique prefix of one.
func (c *Calendar) Lookup(ref string) (model.Event, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return model.Event{}, &NotFoundError{Ref: ref}
	}
	if id, err := model.ParseID(ref); err == nil {
		return c.Get(id)
	}

	var (
		found model.Event
		n     int
	)
	for _, ev := range c.events {
		if strings.HasPrefix(ev.ID.String(), ref) {
			found = ev
			n++
		}
	}
	switch n {
	case 0:
		return model.Event{}, &NotFoundError{Ref: ref}
	case 1:
		return found, nil
	default:
		return model.Event{}, &AmbiguousError{Ref: ref, Matches: n}
	}
}

// Remove deletes the event with the given ID and returns it.
func (c *Calendar) Remove(id model.ID) (model.Event, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Event{}, &NotFoundError{Ref: id.String()}
	}
	ev := c.events[i]
	c.events = append(c.events[:i], c.events[i+1:]...)
	c.reindex()
	return ev, nil
}

// RemoveAll empties the calendar and returns how many events it held.
func (c *Calendar) RemoveAll() int {
	n := len(c.events)
	c.events = nil
	c.index = make(map[model.ID]int)
	return n
}

// Replace swaps the event oldID for ev at the same position. ev may carry a
// new ID; it must not collide with another event.
func (c *Calendar) Replace(oldID model.ID, ev model.Event) error {
	i, ok := c.index[oldID]
	if !ok {
		return &NotFoundError{Ref: oldID.String()}
	}
	if j, ok := c.index[ev.ID]; ok && j != i {
		return &DuplicateError{ID: ev.ID, Title: c.events[j].Title}
	}
	delete(c.index, oldID)
	c.events[i] = ev
	c.index[ev.ID] = i
	return nil
}

// List returns the events in insertion order. The slice is a copy.
func (c *Calendar) List() []model.Event {
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Calendar) reindex() {
	c.index = make(map[model.ID]int, len(c.events))
	for i, ev := range c.events {
		c.index[ev.ID] = i
	}
}

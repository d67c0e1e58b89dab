package calendar

import (
	"time"

	"github.com/rdleal/intervalst/interval"

	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

// Overlap pairs an occurrence of a candidate event with an existing
// occurrence it intersects.
type Overlap struct {
	Candidate model.Occurrence
	Existing  model.Occurrence
}

// Overlaps reports where ev would intersect events already in c within w.
// At most limit occurrences per event are considered (no cap when limit <= 0).
// Occurrences are half-open; zero-length ones overlap whatever spans their
// instant.
func (c *Calendar) Overlaps(ev model.Event, w recur.Window, limit int) ([]Overlap, error) {
	// Equal spans share one group so the tree never loses an occurrence.
	type key struct{ lo, hi time.Time }
	var groups [][]model.Occurrence
	byKey := make(map[key]int)
	tree := interval.NewSearchTree[int](func(x, y time.Time) int { return x.Compare(y) })

	for _, other := range c.events {
		if other.ID == ev.ID {
			continue
		}
		starts, _, err := recur.Expand(other, w, limit)
		if err != nil {
			return nil, err
		}
		for _, s := range starts {
			occ := other.Occurrence(s)
			lo, hi := span(occ)
			k := key{lo.UTC(), hi.UTC()}
			if g, ok := byKey[k]; ok {
				groups[g] = append(groups[g], occ)
				continue
			}
			byKey[k] = len(groups)
			groups = append(groups, []model.Occurrence{occ})
			if err := tree.Insert(lo, hi, byKey[k]); err != nil {
				appLog.Error("overlap index insert failed", err, "event", model.ShortID(other.ID))
			}
		}
	}

	starts, _, err := recur.Expand(ev, w, limit)
	if err != nil {
		return nil, err
	}
	var out []Overlap
	for _, s := range starts {
		cand := ev.Occurrence(s)
		lo, hi := span(cand)
		hits, ok := tree.AllIntersections(lo, hi)
		if !ok {
			continue
		}
		for _, g := range hits {
			for _, existing := range groups[g] {
				out = append(out, Overlap{Candidate: cand, Existing: existing})
			}
		}
	}
	return out, nil
}

// span maps an occurrence onto the closed interval the tree works with.
// [start, end) becomes [start, end-1ns]; a zero-length occurrence stays a
// point.
func span(o model.Occurrence) (time.Time, time.Time) {
	if o.End.After(o.Start) {
		return o.Start, o.End.Add(-time.Nanosecond)
	}
	return o.Start, o.Start
}

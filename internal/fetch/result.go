package fetch

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/lookup"
	"github.com/star/skywatch/internal/objcache"
)

// Failure is one source call that produced no partial.
type Failure struct {
	Source string
	Err    error
}

// NotFound reports whether the source simply did not know the object.
func (f Failure) NotFound() bool {
	return errors.Is(f.Err, lookup.ErrNotFound)
}

// Reason is a short label for the failure.
func (f Failure) Reason() string {
	if f.NotFound() {
		return "not found"
	}
	return f.Err.Error()
}

// Outcome collects every source's answer for one identifier. Contributions
// and Failures are both in source order.
type Outcome struct {
	ID            catalog.ID
	Contributions []catalog.PartialRecord
	Failures      []Failure
}

// Resolved reports whether at least one source contributed.
func (o Outcome) Resolved() bool {
	return len(o.Contributions) > 0
}

// Result is the outcome of one Dispatch, in input identifier order.
type Result struct {
	Outcomes []Outcome

	sources []string
	slots   [][]slot
}

type slot struct {
	partial catalog.PartialRecord
	err     error
	set     bool
}

func newResult(ids []catalog.ID, sources []lookup.Source) *Result {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	r := &Result{
		Outcomes: make([]Outcome, len(ids)),
		sources:  names,
		slots:    make([][]slot, len(ids)),
	}
	for i, id := range ids {
		r.Outcomes[i].ID = id
		r.slots[i] = make([]slot, len(sources))
	}
	return r
}

// set fills one slot and rebuilds that identifier's outcome from its slots
// in source order, so the outcome is independent of completion order.
func (r *Result) set(idIdx, srcIdx int, p catalog.PartialRecord, err error) {
	r.slots[idIdx][srcIdx] = slot{partial: p, err: err, set: true}

	o := &r.Outcomes[idIdx]
	o.Contributions = o.Contributions[:0]
	o.Failures = o.Failures[:0]
	for s, sl := range r.slots[idIdx] {
		if !sl.set {
			continue
		}
		if sl.err != nil {
			o.Failures = append(o.Failures, Failure{Source: r.sources[s], Err: sl.err})
			continue
		}
		o.Contributions = append(o.Contributions, sl.partial)
	}
}

// Resolved returns the identifiers that at least one source contributed to.
func (r *Result) Resolved() []catalog.ID {
	var ids []catalog.ID
	for _, o := range r.Outcomes {
		if o.Resolved() {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Unresolved returns the identifiers no source contributed to.
func (r *Result) Unresolved() []catalog.ID {
	var ids []catalog.ID
	for _, o := range r.Outcomes {
		if !o.Resolved() {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Outcome returns the outcome for id.
func (r *Result) Outcome(id catalog.ID) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Merger is the part of objcache.Store that Apply needs.
type Merger interface {
	Merge(snap *objcache.Snapshot, id catalog.ID, partial catalog.PartialRecord, now time.Time) (catalog.Record, error)
}

// Apply merges every contribution into snap, identifier by identifier in
// input order and, within one identifier, in source order. Unresolved
// identifiers are left untouched. It returns the number of partials merged.
func (r *Result) Apply(m Merger, snap *objcache.Snapshot, now time.Time) (int, error) {
	var merged int
	for _, o := range r.Outcomes {
		for _, p := range o.Contributions {
			if _, err := m.Merge(snap, o.ID, p, now); err != nil {
				return merged, fmt.Errorf("applying %s from %s: %w", o.ID, p.Source, err)
			}
			merged++
		}
	}
	return merged, nil
}

package refresh

import (
	"errors"
	"iter"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/objcache"
	"github.com/star/skywatch/internal/visibility"
)

// ErrNoCoordinates is reported for a cached object with neither coordinates
// nor an orbit.
var ErrNoCoordinates = errors.New("object has no coordinates")

// Entry pairs a cached record with its visibility window. When Err is set
// the window holds the "not visible" marker at both endpoints.
type Entry struct {
	Record catalog.Record
	Window visibility.Window
	Err    error
}

// Entries yields every cached record in identifier order with its window
// for site. Windows are computed as the sequence is consumed.
func Entries(snap *objcache.Snapshot, site visibility.Site) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for id := range snap.Keys() {
			rec, _ := snap.Get(id)
			e := EntryFor(rec, site)
			switch {
			case e.Err != nil:
				metrics.ObserveVisibility("invalid")
			case e.Window.VisibleAny():
				metrics.ObserveVisibility("visible")
			default:
				metrics.ObserveVisibility("not_visible")
			}

			if !yield(e) {
				return
			}
		}
	}
}

// EntryFor computes the window of a single record. An orbit takes
// precedence over coordinates.
func EntryFor(rec catalog.Record, site visibility.Site) Entry {
	e := Entry{Record: rec}
	var (
		w   visibility.Window
		err error
	)
	switch {
	case rec.Orbit != nil:
		w, err = visibility.ComputeOrbitWindow(*rec.Orbit, site)
	case rec.Coordinates != nil:
		w, err = visibility.ComputeWindow(*rec.Coordinates, site)
	default:
		e.Err = ErrNoCoordinates
		return e
	}
	if err != nil {
		e.Err = err
		return e
	}
	e.Window = w
	return e
}

// Filter hides entries from a report.
type Filter struct {
	// VisibleOnly drops entries observable at neither endpoint.
	VisibleOnly bool
	// MaxMagnitude drops entries fainter than the limit. Entries with no
	// known brightness are dropped too when it is set.
	MaxMagnitude *float64
}

// Keep reports whether e passes the filter.
func (f Filter) Keep(e Entry) bool {
	if f.VisibleOnly && !e.Window.VisibleAny() {
		return false
	}
	if f.MaxMagnitude != nil && (e.Record.Brightness == nil || *e.Record.Brightness > *f.MaxMagnitude) {
		return false
	}
	return true
}

// Filtered yields the entries of seq that f keeps.
func Filtered(seq iter.Seq[Entry], f Filter) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for e := range seq {
			if f.Keep(e) && !yield(e) {
				return
			}
		}
	}
}

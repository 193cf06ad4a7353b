package tle

import "time"

// MaxEpochDrift is how far from its epoch an element set is trusted. SGP4
// error grows to kilometers within a couple of weeks for low orbits.
const MaxEpochDrift = 14 * 24 * time.Hour

// TLEEntry is one satellite's two-line element set.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochDrift returns how far at lies from the element set's epoch.
func (e TLEEntry) EpochDrift(at time.Time) time.Duration {
	d := at.Sub(e.Epoch)
	if d < 0 {
		return -d
	}
	return d
}

// EpochRange is the earliest and latest epoch in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset is one loaded set of element sets and where it came from.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry
}

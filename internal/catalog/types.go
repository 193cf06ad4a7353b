// Package catalog defines the celestial object records shared by the cache,
// the remote lookups and the visibility engine.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind classifies a celestial object.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindStar            Kind = "star"
	KindDeepSky         Kind = "deep_sky_object"
	KindSolarSystemBody Kind = "solar_system_body"
)

// ParseKind maps a free-form type string from a remote source to a Kind.
// Anything unrecognized is KindUnknown.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "star", "double star", "variable star":
		return KindStar
	case "deep_sky_object", "deep sky object", "galaxy", "nebula", "cluster",
		"open cluster", "globular cluster", "planetary nebula", "supernova remnant":
		return KindDeepSky
	case "solar_system_body", "planet", "moon", "dwarf planet", "asteroid", "comet", "satellite":
		return KindSolarSystemBody
	default:
		return KindUnknown
	}
}

// Imagery references a cached image artifact for an object.
type Imagery struct {
	Width    int     `toml:"width" json:"width"`
	Height   int     `toml:"height" json:"height"`
	FieldDeg float64 `toml:"field_deg" json:"field_deg"`
	Scaling  string  `toml:"scaling" json:"scaling"`
	Handle   string  `toml:"handle" json:"handle"` // artifact path relative to the artifact dir
}

// SameParams reports whether two imagery references were produced with
// identical request parameters.
func (im Imagery) SameParams(other Imagery) bool {
	return im.Width == other.Width &&
		im.Height == other.Height &&
		im.FieldDeg == other.FieldDeg &&
		im.Scaling == other.Scaling
}

// Orbit is the two-line element set of an Earth-orbiting object. Its sky
// position depends on the instant and the site, so the elements are kept
// instead of coordinates and propagated whenever a window is computed.
type Orbit struct {
	NORADID int    `toml:"norad_id" json:"norad_id"`
	Line1   string `toml:"line1" json:"line1"`
	Line2   string `toml:"line2" json:"line2"`
}

// Validate checks the element lines are structurally plausible.
func (o Orbit) Validate() error {
	if o.NORADID <= 0 {
		return fmt.Errorf("invalid orbit: NORAD number %d", o.NORADID)
	}
	if len(o.Line1) != 69 || !strings.HasPrefix(o.Line1, "1 ") {
		return fmt.Errorf("invalid orbit for NORAD %d: malformed line 1", o.NORADID)
	}
	if len(o.Line2) != 69 || !strings.HasPrefix(o.Line2, "2 ") {
		return fmt.Errorf("invalid orbit for NORAD %d: malformed line 2", o.NORADID)
	}
	return nil
}

// Record is one cache entry.
type Record struct {
	ID            ID          `toml:"-" json:"id"`
	Name          string      `toml:"name" json:"name"`
	Kind          Kind        `toml:"kind" json:"kind"`
	Coordinates   *Equatorial `toml:"coordinates,omitempty" json:"coordinates,omitempty"`
	Orbit         *Orbit      `toml:"orbit,omitempty" json:"orbit,omitempty"`
	Brightness    *float64    `toml:"brightness,omitempty" json:"brightness,omitempty"`
	Constellation *string     `toml:"constellation,omitempty" json:"constellation,omitempty"`
	Distance      *float64    `toml:"distance,omitempty" json:"distance,omitempty"`
	Imagery       *Imagery    `toml:"imagery,omitempty" json:"imagery,omitempty"`
	Sources       []string    `toml:"sources,omitempty" json:"sources,omitempty"`
	LastUpdated   time.Time   `toml:"last_updated" json:"last_updated"`
}

// PartialRecord is one source's contribution for one object.
// A nil field means the source has nothing to say about it.
type PartialRecord struct {
	Source        string
	Name          string
	Kind          *Kind
	Coordinates   *Equatorial
	Orbit         *Orbit
	Brightness    *float64
	Constellation *string
	Distance      *float64
	Imagery       *Imagery
}

// Empty reports whether p carries no field at all.
func (p PartialRecord) Empty() bool {
	return p.Kind == nil && p.Coordinates == nil && p.Orbit == nil && p.Brightness == nil &&
		p.Constellation == nil && p.Distance == nil && p.Imagery == nil
}

// Validate checks the fields of p that have range constraints.
func (p PartialRecord) Validate() error {
	if p.Coordinates != nil {
		if err := p.Coordinates.Validate(); err != nil {
			return err
		}
	}
	if p.Orbit != nil {
		if err := p.Orbit.Validate(); err != nil {
			return err
		}
	}
	if p.Imagery != nil && (p.Imagery.Width <= 0 || p.Imagery.Height <= 0 || p.Imagery.Handle == "") {
		return fmt.Errorf("invalid imagery reference %+v", *p.Imagery)
	}
	return nil
}

// Apply overwrites every field of r that p supplies and leaves the rest
// untouched. LastUpdated only moves when the content changes, so applying
// the same partial twice is a no-op. The caller is expected to have
// validated p.
func (r Record) Apply(p PartialRecord, now time.Time) Record {
	prev := r
	if r.Kind == "" {
		r.Kind = KindUnknown
	}
	if r.Name == "" {
		r.Name = p.Name
	}
	if p.Kind != nil {
		r.Kind = *p.Kind
	}
	if p.Coordinates != nil {
		c := *p.Coordinates
		r.Coordinates = &c
	}
	if p.Orbit != nil {
		o := *p.Orbit
		r.Orbit = &o
	}
	if p.Brightness != nil {
		v := *p.Brightness
		r.Brightness = &v
	}
	if p.Constellation != nil {
		v := *p.Constellation
		r.Constellation = &v
	}
	if p.Distance != nil {
		v := *p.Distance
		r.Distance = &v
	}
	if p.Imagery != nil {
		im := *p.Imagery
		r.Imagery = &im
	}
	if p.Source != "" && !slices.Contains(r.Sources, p.Source) {
		r.Sources = append(slices.Clone(r.Sources), p.Source)
		slices.Sort(r.Sources)
	}
	if prev.LastUpdated.IsZero() || !sameContent(prev, r) {
		r.LastUpdated = now.UTC()
	}
	return r
}

func sameContent(a, b Record) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Kind == b.Kind &&
		eqPtr(a.Coordinates, b.Coordinates) &&
		eqPtr(a.Orbit, b.Orbit) &&
		eqPtr(a.Brightness, b.Brightness) &&
		eqPtr(a.Constellation, b.Constellation) &&
		eqPtr(a.Distance, b.Distance) &&
		eqPtr(a.Imagery, b.Imagery) &&
		slices.Equal(a.Sources, b.Sources)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Ptr returns a pointer to v. Sources use it to fill PartialRecord fields.
func Ptr[T any](v T) *T {
	return &v
}

// Package visibility decides whether a sky object is worth pointing at from
// a fixed site during an observation window.
//
// Only the two window endpoints are sampled. Each endpoint is observable
// when 0 < sec(z) < SeczMax; anything else, including a NaN or infinite
// sec(z), yields the "not visible" marker for that endpoint.
package visibility

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/transform"
)

// DefaultSeczMax is the airmass threshold used when a site does not set one.
const DefaultSeczMax = 3.0

// ErrInvalidGeometryInput is returned for structurally invalid inputs:
// non-finite coordinates or site values, or a window that ends before it starts.
var ErrInvalidGeometryInput = errors.New("invalid geometry input")

// Site is an observing location and window. Immutable for a run.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	ElevationM   float64
	Start        time.Time
	End          time.Time
	SeczMax      float64
}

// Validate checks the site for values ComputeWindow cannot work with.
func (s Site) Validate() error {
	for name, v := range map[string]float64{
		"latitude":  s.LatitudeDeg,
		"longitude": s.LongitudeDeg,
		"elevation": s.ElevationM,
		"secz_max":  s.SeczMax,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: site %s is not finite", ErrInvalidGeometryInput, name)
		}
	}
	if s.LatitudeDeg < -90 || s.LatitudeDeg > 90 {
		return fmt.Errorf("%w: site latitude %.4f out of range", ErrInvalidGeometryInput, s.LatitudeDeg)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: observation window has no start or end", ErrInvalidGeometryInput)
	}
	if s.Start.After(s.End) {
		return fmt.Errorf("%w: window start %s is after end %s", ErrInvalidGeometryInput,
			s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339))
	}
	return nil
}

func (s Site) seczMax() float64 {
	if s.SeczMax <= 0 {
		return DefaultSeczMax
	}
	return s.SeczMax
}

// Angle is a measured angle in degrees, or the "not visible" marker when
// Valid is false.
type Angle struct {
	Degrees float64
	Valid   bool
}

// NotVisible is the sentinel angle.
var NotVisible = Angle{}

// String renders the angle rounded to a whole degree, or "-".
func (a Angle) String() string {
	if !a.Valid {
		return "-"
	}
	return strconv.FormatFloat(math.Round(a.Degrees), 'f', 0, 64)
}

// MarshalJSON encodes the sentinel as null.
func (a Angle) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(a.Degrees, 'f', 3, 64)), nil
}

// Endpoint is the object's sky position at one end of the window.
type Endpoint struct {
	Time     time.Time `json:"time"`
	Altitude Angle     `json:"altitude"`
	Azimuth  Angle     `json:"azimuth"`
	Secz     float64   `json:"-"`
}

// Observable reports whether the endpoint carries a concrete position.
func (e Endpoint) Observable() bool {
	return e.Altitude.Valid
}

// Window is the visibility result for one object. It is derived from the
// record's coordinates and the site on every run and never persisted.
type Window struct {
	Start Endpoint `json:"start"`
	End   Endpoint `json:"end"`
}

// VisibleAny reports whether the object is observable at either endpoint.
func (w Window) VisibleAny() bool {
	return w.Start.Observable() || w.End.Observable()
}

// ComputeWindow evaluates coords at the site's start and end times.
func ComputeWindow(coords catalog.Equatorial, site Site) (Window, error) {
	if err := coords.Validate(); err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidGeometryInput, err)
	}
	if err := site.Validate(); err != nil {
		return Window{}, err
	}

	limit := site.seczMax()
	at := func(t time.Time) Endpoint {
		h := transform.EquatorialToHorizontal(coords.RADeg, coords.DecDeg, site.LatitudeDeg, site.LongitudeDeg, t)
		return evaluate(t, h, limit)
	}

	return Window{
		Start: at(site.Start),
		End:   at(site.End),
	}, nil
}

// evaluate applies the airmass threshold to one horizontal position.
func evaluate(t time.Time, h transform.Horizontal, seczMax float64) Endpoint {
	ep := Endpoint{Time: t.UTC(), Secz: h.Secz}
	if math.IsNaN(h.Secz) || !(h.Secz > 0 && h.Secz < seczMax) {
		return ep
	}
	if math.IsNaN(h.AltitudeDeg) || math.IsNaN(h.AzimuthDeg) {
		return ep
	}
	ep.Altitude = Angle{Degrees: h.AltitudeDeg, Valid: true}
	ep.Azimuth = Angle{Degrees: h.AzimuthDeg, Valid: true}
	return ep
}

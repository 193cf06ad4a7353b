package catalog

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinates is returned when a coordinate pair cannot be normalized.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Equatorial is a right ascension / declination pair in decimal degrees.
// Values are only produced by Decimal or Sexagesimal, which validate ranges,
// so downstream code never branches on the source representation.
type Equatorial struct {
	RADeg  float64 `toml:"ra_deg" json:"ra_deg"`
	DecDeg float64 `toml:"dec_deg" json:"dec_deg"`
}

// HMS is a right ascension in hours, minutes and seconds of time.
type HMS struct {
	Hours, Minutes, Seconds float64
}

// DMS is a declination in degrees, arcminutes and arcseconds.
// Negative is carried separately so that -00° 30' is representable.
type DMS struct {
	Negative bool

	Degrees, Minutes, Seconds float64
}

// Decimal builds an Equatorial from decimal degrees. RA is wrapped into [0, 360).
func Decimal(raDeg, decDeg float64) (Equatorial, error) {
	if !finite(raDeg) || !finite(decDeg) {
		return Equatorial{}, fmt.Errorf("%w: non-finite value ra=%v dec=%v", ErrInvalidCoordinates, raDeg, decDeg)
	}
	if decDeg < -90 || decDeg > 90 {
		return Equatorial{}, fmt.Errorf("%w: declination %.6f out of range [-90, 90]", ErrInvalidCoordinates, decDeg)
	}
	raDeg = math.Mod(raDeg, 360)
	if raDeg < 0 {
		raDeg += 360
	}
	// A tiny negative RA rounds up to exactly 360.
	if raDeg >= 360 {
		raDeg = 0
	}
	return Equatorial{RADeg: raDeg, DecDeg: decDeg}, nil
}

// Sexagesimal builds an Equatorial from RA h/m/s and Dec d/m/s.
func Sexagesimal(ra HMS, dec DMS) (Equatorial, error) {
	if err := checkParts("ra", ra.Hours, ra.Minutes, ra.Seconds); err != nil {
		return Equatorial{}, err
	}
	if err := checkParts("dec", dec.Degrees, dec.Minutes, dec.Seconds); err != nil {
		return Equatorial{}, err
	}
	if ra.Hours >= 24 {
		return Equatorial{}, fmt.Errorf("%w: ra hours %.6f out of range [0, 24)", ErrInvalidCoordinates, ra.Hours)
	}

	raDeg := (ra.Hours + ra.Minutes/60 + ra.Seconds/3600) * 15
	decDeg := dec.Degrees + dec.Minutes/60 + dec.Seconds/3600
	if dec.Negative {
		decDeg = -decDeg
	}
	return Decimal(raDeg, decDeg)
}

func checkParts(name string, whole, minutes, seconds float64) error {
	if !finite(whole) || !finite(minutes) || !finite(seconds) {
		return fmt.Errorf("%w: non-finite %s component", ErrInvalidCoordinates, name)
	}
	if whole < 0 {
		return fmt.Errorf("%w: negative %s leading component %.6f (use the sign flag)", ErrInvalidCoordinates, name, whole)
	}
	if minutes < 0 || minutes >= 60 || seconds < 0 || seconds >= 60 {
		return fmt.Errorf("%w: %s minutes/seconds must be in [0, 60), got %.6f/%.6f", ErrInvalidCoordinates, name, minutes, seconds)
	}
	return nil
}

// Validate reports whether e satisfies the ranges Decimal enforces.
// Used on records decoded from disk, which bypass the constructors.
func (e Equatorial) Validate() error {
	if !finite(e.RADeg) || !finite(e.DecDeg) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if e.RADeg < 0 || e.RADeg >= 360 || e.DecDeg < -90 || e.DecDeg > 90 {
		return fmt.Errorf("%w: ra=%.6f dec=%.6f out of range", ErrInvalidCoordinates, e.RADeg, e.DecDeg)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

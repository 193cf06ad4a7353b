// Package transform converts between the time scales and coordinate frames
// needed to place sky objects above a ground site.
//
// Sidereal time follows the IAU-82 model (Vallado, "Fundamentals of
// Astrodynamics and Applications", Eq 3-47). UT1 is approximated by UTC,
// which is good to ~1 s of time and well below what a visibility check needs.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (2000-01-01 12:00:00 TT).
const j2000 = 2451545.0

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// JulianDate converts a UTC instant to a Julian Date (Meeus ch. 7).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	day := float64(t.Day())
	frac := (float64(t.Hour()) +
		float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	// January and February count as months 13 and 14 of the previous year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + day + frac + b - 1524.5
}

// JulianCenturies returns Julian centuries elapsed since J2000.0.
func JulianCenturies(t time.Time) float64 {
	return (JulianDate(t) - j2000) / 36525.0
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π).
func GMST(t time.Time) float64 {
	tu := JulianCenturies(t)

	// Seconds of time; 876600h = 3155760000 s.
	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, 86400.0)
	if sec < 0 {
		sec += 86400.0
	}
	return sec / 86400.0 * 2.0 * math.Pi
}

// LocalSiderealTime returns the mean sidereal time in radians at a site
// east longitude (degrees, west negative), in [0, 2π).
func LocalSiderealTime(t time.Time, lonDeg float64) float64 {
	return normalizeRad(GMST(t) + lonDeg*deg2rad)
}

func normalizeRad(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	// Tiny negative inputs round up to exactly 2π.
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

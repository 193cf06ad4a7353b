package transform

import (
	"math"
	"time"
)

// Moon is the lunar phase at an instant.
type Moon struct {
	// Illumination is the illuminated fraction of the disk, 0 to 1.
	Illumination float64
	Phase        string
	Waxing       bool
}

// Named phases in order of elongation, each spanning 45°.
var moonPhases = [8]string{
	"New Moon",
	"Waxing Crescent",
	"First Quarter",
	"Waxing Gibbous",
	"Full Moon",
	"Waning Gibbous",
	"Last Quarter",
	"Waning Crescent",
}

// MoonAt returns the phase of the Moon at t from the low-precision phase
// angle of Meeus ch. 48. The illuminated fraction is good to about 0.5%.
func MoonAt(t time.Time) Moon {
	tc := JulianCenturies(t)

	d := normalizeDeg(297.8501921 + 445267.1114034*tc)  // mean elongation
	m := normalizeDeg(357.5291092 + 35999.0502909*tc)   // Sun's mean anomaly
	mp := normalizeDeg(134.9633964 + 477198.8675055*tc) // Moon's mean anomaly

	sin := func(deg float64) float64 { return math.Sin(deg * deg2rad) }
	i := 180 - d -
		6.289*sin(mp) +
		2.100*sin(m) -
		1.274*sin(2*d-mp) -
		0.658*sin(2*d) -
		0.214*sin(2*mp) -
		0.110*sin(d)

	octant := int(normalizeDeg(d+22.5)/45) % len(moonPhases)
	return Moon{
		Illumination: (1 + math.Cos(i*deg2rad)) / 2,
		Phase:        moonPhases[octant],
		Waxing:       d < 180,
	}
}

func normalizeDeg(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

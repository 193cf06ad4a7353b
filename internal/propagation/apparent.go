package propagation

import (
	"fmt"
	"math"
	"time"

	"github.com/star/skywatch/internal/transform"
)

// Apparent is where a satellite stands in a site's sky at one instant.
type Apparent struct {
	At         time.Time
	Horizontal transform.Horizontal
	RangeKm    float64
}

// ApparentPosition propagates p to t and returns where the satellite
// appears from obs.
func ApparentPosition(p *SGP4Propagator, obs transform.ObserverPosition, t time.Time) (Apparent, error) {
	teme, err := p.Propagate(t)
	if err != nil {
		return Apparent{}, err
	}

	ecef := transform.TEMEToECEF(teme, transform.GMST(t))
	if !transform.ValidateECEF(ecef) {
		return Apparent{}, fmt.Errorf("NORAD %d: ECEF position out of range", p.noradID)
	}

	h, rng := transform.LookAngles(obs, ecef)
	if math.IsNaN(h.AltitudeDeg) || math.IsNaN(h.AzimuthDeg) {
		return Apparent{}, fmt.Errorf("NORAD %d: degenerate line of sight", p.noradID)
	}
	return Apparent{At: t.UTC(), Horizontal: h, RangeKm: rng}, nil
}

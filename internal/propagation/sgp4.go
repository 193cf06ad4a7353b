// Package propagation places Earth-orbiting satellites on the sky of a
// ground site using SGP4.
package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/skywatch/internal/transform"
)

// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. Failures are detected by checking output for NaN/Inf and
// unreasonable position magnitudes.

// SGP4Propagator wraps the go-satellite library for a single satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
//
// TLE format is checked before the library sees it, because go-satellite
// calls log.Fatal on malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// NORADID returns the catalog number the propagator was built for.
func (p *SGP4Propagator) NORADID() int {
	return p.noradID
}

// Propagate computes the satellite position in the TEME frame (km) at t.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}

	// Between ~6200 km (decayed) and ~50000 km (beyond GEO).
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}

	return transform.PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z}, nil
}

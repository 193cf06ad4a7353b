package propagation

import (
	"math"
	"testing"
	"time"

	"github.com/star/skywatch/internal/transform"
)

// ISS TLE (epoch 2024, will still propagate reasonably for near-future times).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

var issTarget = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

// TestPropagateSingle verifies that a single satellite can be propagated
// and that the ECEF output is reasonable.
func TestPropagateSingle(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}
	if prop.NORADID() != 25544 {
		t.Errorf("NORADID() = %d", prop.NORADID())
	}

	teme, err := prop.Propagate(issTarget)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	// ~6371 + 420 km.
	mag := math.Sqrt(teme.X*teme.X + teme.Y*teme.Y + teme.Z*teme.Z)
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km (ISS orbit)", mag)
	}

	ecef := transform.TEMEToECEF(teme, transform.GMST(issTarget))
	if !transform.ValidateECEF(ecef) {
		t.Errorf("ECEF position failed validation: [%.1f, %.1f, %.1f] m", ecef.X, ecef.Y, ecef.Z)
	}
	ecefMag := math.Sqrt(ecef.X*ecef.X+ecef.Y*ecef.Y+ecef.Z*ecef.Z) / 1000.0
	if math.Abs(ecefMag-mag) > 0.01 {
		t.Errorf("ECEF magnitude = %.3f km, TEME magnitude = %.3f km (should match)", ecefMag, mag)
	}
}

// TestPropagateInvalidTLE verifies that an invalid TLE returns an error.
func TestPropagateInvalidTLE(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"garbage", "invalid line 1", "invalid line 2"},
		{"swapped lines", issLine2, issLine1},
		{"truncated", issLine1[:60], issLine2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSGP4Propagator(tt.line1, tt.line2, 99999); err == nil {
				t.Fatal("expected error for invalid TLE, got nil")
			}
		})
	}
}

// TestApparentPositionOverhead puts the observer under the satellite: it
// must appear near the zenith at roughly its orbital altitude.
func TestApparentPositionOverhead(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatal(err)
	}
	teme, err := prop.Propagate(issTarget)
	if err != nil {
		t.Fatal(err)
	}
	ecef := transform.TEMEToECEF(teme, transform.GMST(issTarget))
	lat := math.Atan2(ecef.Z, math.Hypot(ecef.X, ecef.Y)) * 180 / math.Pi
	lon := math.Atan2(ecef.Y, ecef.X) * 180 / math.Pi

	obs := transform.NewObserverPosition(lat, lon, 0)
	app, err := ApparentPosition(prop, obs, issTarget)
	if err != nil {
		t.Fatalf("ApparentPosition: %v", err)
	}

	if app.RangeKm < 350 || app.RangeKm > 500 {
		t.Errorf("range = %.1f km, want ~420 km", app.RangeKm)
	}
	if h := app.Horizontal; h.AltitudeDeg < 85 || h.Secz < 1 || h.Secz > 1.01 {
		t.Errorf("horizontal = %+v, want near zenith", h)
	}
	if !app.At.Equal(issTarget) {
		t.Errorf("At = %v, want %v", app.At, issTarget)
	}
}

// TestApparentPositionFarSide checks an observer on the opposite side of
// the Earth sees the satellite below the horizon at a long range.
func TestApparentPositionFarSide(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatal(err)
	}
	teme, _ := prop.Propagate(issTarget)
	ecef := transform.TEMEToECEF(teme, transform.GMST(issTarget))
	lat := -math.Atan2(ecef.Z, math.Hypot(ecef.X, ecef.Y)) * 180 / math.Pi
	lon := math.Atan2(-ecef.Y, -ecef.X) * 180 / math.Pi

	app, err := ApparentPosition(prop, transform.NewObserverPosition(lat, lon, 0), issTarget)
	if err != nil {
		t.Fatalf("ApparentPosition: %v", err)
	}
	if app.RangeKm < 12000 {
		t.Errorf("range = %.1f km, want across the Earth", app.RangeKm)
	}
	if h := app.Horizontal; h.AltitudeDeg > -80 || h.Secz > 0 {
		t.Errorf("horizontal = %+v, want near nadir", h)
	}
}

package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		{"Vallado example 3-15", time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC), 2453101.827411875},
		{"non-UTC input", time.Date(2000, 1, 1, 6, 0, 0, 0, time.FixedZone("CST", -6*3600)), 2451545.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestGMST cross-checks against go-satellite's GSTimeFromDate, which uses the
// same IAU-82 model.
func TestGMST(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC),
	}

	for _, tm := range times {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			ours := GMST(tm)
			ref := satellite.GSTimeFromDate(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
			if diff := math.Abs(ours - ref); diff > 1e-8 {
				t.Errorf("GMST = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", ours, ref, diff)
			}
		})
	}
}

func TestLocalSiderealTimeRange(t *testing.T) {
	tm := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	for _, lon := range []float64{-180, -87, 0, 45.5, 180} {
		lst := LocalSiderealTime(tm, lon)
		if lst < 0 || lst >= 2*math.Pi {
			t.Errorf("LST at lon %.1f = %.6f, want [0, 2π)", lon, lst)
		}
	}

	// Moving 15° east advances local sidereal time by one hour (π/12).
	a := LocalSiderealTime(tm, 0)
	b := LocalSiderealTime(tm, 15)
	if diff := math.Abs(normalizeRad(b-a) - math.Pi/12); diff > 1e-12 {
		t.Errorf("15° east should add π/12, diff=%.2e", diff)
	}
}

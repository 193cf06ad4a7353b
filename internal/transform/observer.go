package transform

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ObserverPosition holds a ground site in geodetic and ECEF form.
// ECEF is computed once so it can be reused for every orbital object.
type ObserverPosition struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	ECEFx, ECEFy, ECEFz  float64 // meters
}

// NewObserverPosition builds an ObserverPosition from latitude/longitude
// in degrees and elevation in meters above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltM:   altM,
		ECEFx:  (n + altM) * cosLat * math.Cos(lon),
		ECEFy:  (n + altM) * cosLat * math.Sin(lon),
		ECEFz:  (n*(1-wgs84E2) + altM) * sinLat,
	}
}

// PositionTEME is an SGP4 output position in the TEME frame (km).
type PositionTEME struct {
	X, Y, Z float64
}

// PositionECEF is an Earth-fixed position (meters).
type PositionECEF struct {
	X, Y, Z float64
}

// TEMEToECEF rotates a TEME position by GMST (TEME → PEF ≈ ECEF, ignoring
// polar motion) and converts km to meters.
func TEMEToECEF(teme PositionTEME, gmst float64) PositionECEF {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)
	return PositionECEF{
		X: (teme.X*cosG + teme.Y*sinG) * 1000.0,
		Y: (-teme.X*sinG + teme.Y*cosG) * 1000.0,
		Z: teme.Z * 1000.0,
	}
}

// LookAngles returns the altitude and azimuth of an Earth-fixed target seen
// from obs, along with the range in km. The line of sight is resolved in the
// site's local east/north/up frame.
func LookAngles(obs ObserverPosition, target PositionECEF) (Horizontal, float64) {
	rx := target.X - obs.ECEFx
	ry := target.Y - obs.ECEFy
	rz := target.Z - obs.ECEFz

	r := math.Sqrt(rx*rx + ry*ry + rz*rz)
	if r == 0 {
		return Horizontal{AltitudeDeg: math.NaN(), AzimuthDeg: math.NaN(), Secz: math.NaN()}, 0
	}

	sinLat, cosLat := math.Sin(obs.LatRad), math.Cos(obs.LatRad)
	sinLon, cosLon := math.Sin(obs.LonRad), math.Cos(obs.LonRad)

	e := -sinLon*rx + cosLon*ry
	n := -sinLat*cosLon*rx - sinLat*sinLon*ry + cosLat*rz
	u := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	alt := math.Asin(u / r)
	az := normalizeRad(math.Atan2(e, n))
	return Horizontal{
		AltitudeDeg: alt * rad2deg,
		AzimuthDeg:  az * rad2deg,
		Secz:        1 / math.Sin(alt),
	}, r / 1000.0
}

// ValidateECEF reports whether pos is a plausible Earth-orbit position:
// finite and between 6200 km and 50000 km from the geocenter.
func ValidateECEF(pos PositionECEF) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	return mag >= 6200.0e3 && mag <= 50000.0e3
}

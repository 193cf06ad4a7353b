package transform

import (
	"math"
	"time"
)

// Horizontal is an object's position in a site's local sky.
type Horizontal struct {
	AltitudeDeg float64 // 0 = horizon, 90 = zenith
	AzimuthDeg  float64 // 0 = North, clockwise
	Secz        float64 // sec(zenith angle); non-positive below the horizon
}

// mat3 is a row-major 3x3 rotation matrix.
type mat3 [3][3]float64

func (m mat3) apply(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func (m mat3) mul(n mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

func (m mat3) transpose() mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// rotY and rotZ are frame rotations (Vallado ROT2/ROT3).
func rotY(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
}

func rotZ(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
}

// precessionMatrix returns the IAU-1976 precession rotation from the J2000
// mean equator to the mean equator of date t (Meeus Eq 21.3).
func precessionMatrix(t time.Time) mat3 {
	tc := JulianCenturies(t)
	arcsec := deg2rad / 3600.0
	zeta := (2306.2181*tc + 0.30188*tc*tc + 0.017998*tc*tc*tc) * arcsec
	z := (2306.2181*tc + 1.09468*tc*tc + 0.018203*tc*tc*tc) * arcsec
	theta := (2004.3109*tc - 0.42665*tc*tc - 0.041833*tc*tc*tc) * arcsec

	return rotZ(-z).mul(rotY(theta)).mul(rotZ(-zeta))
}

func toUnit(raRad, decRad float64) [3]float64 {
	cd := math.Cos(decRad)
	return [3]float64{cd * math.Cos(raRad), cd * math.Sin(raRad), math.Sin(decRad)}
}

func fromUnit(v [3]float64) (raRad, decRad float64) {
	raRad = normalizeRad(math.Atan2(v[1], v[0]))
	decRad = math.Asin(math.Max(-1, math.Min(1, v[2])))
	return raRad, decRad
}

// PrecessFromJ2000 moves J2000 mean coordinates (degrees) to the mean
// equator and equinox of t.
func PrecessFromJ2000(raDeg, decDeg float64, t time.Time) (float64, float64) {
	ra, dec := fromUnit(precessionMatrix(t).apply(toUnit(raDeg*deg2rad, decDeg*deg2rad)))
	return ra * rad2deg, dec * rad2deg
}

// PrecessToJ2000 is the inverse of PrecessFromJ2000.
func PrecessToJ2000(raDeg, decDeg float64, t time.Time) (float64, float64) {
	ra, dec := fromUnit(precessionMatrix(t).transpose().apply(toUnit(raDeg*deg2rad, decDeg*deg2rad)))
	return ra * rad2deg, dec * rad2deg
}

// EquatorialToHorizontal converts J2000 right ascension/declination
// (degrees) to altitude/azimuth for a site at latDeg/lonDeg at time t.
//
// Coordinates are precessed to date and rotated by the local hour angle.
// Refraction, nutation and aberration are ignored (together under 0.02°
// except refraction near the horizon).
func EquatorialToHorizontal(raDeg, decDeg, latDeg, lonDeg float64, t time.Time) Horizontal {
	raDate, decDate := PrecessFromJ2000(raDeg, decDeg, t)
	ha := LocalSiderealTime(t, lonDeg) - raDate*deg2rad
	return hourAngleToHorizontal(ha, decDate*deg2rad, latDeg*deg2rad)
}

func hourAngleToHorizontal(ha, dec, lat float64) Horizontal {
	sinDec, cosDec := math.Sin(dec), math.Cos(dec)
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	cosHA := math.Cos(ha)

	sinAlt := sinDec*sinLat + cosDec*cosLat*cosHA
	sinAlt = math.Max(-1, math.Min(1, sinAlt))
	alt := math.Asin(sinAlt)

	az := math.Atan2(-cosDec*math.Sin(ha), sinDec*cosLat-cosDec*sinLat*cosHA)
	azDeg := normalizeRad(az) * rad2deg
	if azDeg >= 360 {
		azDeg = 0
	}

	// cos(z) = sin(alt). An exact horizon crossing gives ±Inf, which callers
	// treat as unobservable along with NaN.
	return Horizontal{
		AltitudeDeg: alt * rad2deg,
		AzimuthDeg:  azDeg,
		Secz:        1.0 / sinAlt,
	}
}

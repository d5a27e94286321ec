package geo

import "math"

// EarthRadiusMiles is the spherical-earth radius used for all distance math
const EarthRadiusMiles = 3958.8

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// DestinationPoint computes the point reached by travelling distanceMiles
// from (lat, lng) along the given initial bearing, on a spherical earth.
// Pure and deterministic; malformed numeric input is the caller's problem.
func DestinationPoint(lat, lng, bearingDeg, distanceMiles float64) (float64, float64) {
	delta := distanceMiles / EarthRadiusMiles
	theta := toRad(bearingDeg)
	phi1 := toRad(lat)
	lambda1 := toRad(lng)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)

	return toDeg(phi2), NormalizeLng(toDeg(lambda2))
}

// DistanceMiles returns the haversine distance between two points
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// NormalizeLng wraps a longitude into [-180, 180)
func NormalizeLng(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// Lerp linearly interpolates between a and b at fraction t
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

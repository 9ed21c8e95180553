package geo

import "math"

// EarthRadiusMeters is the mean radius of the sphere used for distances.
const EarthRadiusMeters = 6371000.0

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula. Valid for any longitude difference, including pairs
// that straddle the antimeridian.
func Distance(a, b Point) float64 {
	phi1 := radians(a.Latitude)
	phi2 := radians(b.Latitude)
	dPhi := radians(b.Latitude - a.Latitude)
	dLambda := radians(b.Longitude - a.Longitude)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// rounding can push h a hair outside [0, 1] for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

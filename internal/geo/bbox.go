package geo

import "math"

// BoundingBox is a latitude/longitude rectangle. When WrapsLongitude is set
// the box spans the full longitude range and only latitude is checked.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64

	WrapsLongitude bool
}

// BoundingBoxAround returns a rectangle guaranteed to contain every point
// within radiusMeters of center. It is conservative: points inside the box may
// still lie outside the radius, so callers must run Distance afterwards.
func BoundingBoxAround(center Point, radiusMeters float64) BoundingBox {
	angular := radiusMeters / EarthRadiusMeters
	dLat := angular * 180 / math.Pi

	box := BoundingBox{
		MinLat: center.Latitude - dLat,
		MaxLat: center.Latitude + dLat,
	}

	// Close to a pole the longitude span collapses; give up on it.
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		box.WrapsLongitude = true
		return box
	}

	ratio := math.Sin(angular) / math.Cos(radians(center.Latitude))
	if ratio >= 1 {
		box.WrapsLongitude = true
		return box
	}
	dLng := math.Asin(ratio) * 180 / math.Pi

	box.MinLng = center.Longitude - dLng
	box.MaxLng = center.Longitude + dLng
	if box.MinLng < -180 || box.MaxLng > 180 {
		box.WrapsLongitude = true
	}
	return box
}

func (b BoundingBox) Contains(p Point) bool {
	if p.Latitude < b.MinLat || p.Latitude > b.MaxLat {
		return false
	}
	if b.WrapsLongitude {
		return true
	}
	return p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

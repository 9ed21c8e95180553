package api

import (
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	// Set on nearby searches only.
	Count       *int              `json:"count,omitempty"`
	BackendUsed proximity.Backend `json:"backend_used,omitempty"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func pointGeometry(lat, lng float64) Geometry {
	return Geometry{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
	}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func toGeoJSON(disasters []models.Disaster) FeatureCollection {
	features := make([]Feature, 0, len(disasters))

	for _, d := range disasters {
		f := Feature{
			Type:     "Feature",
			Geometry: pointGeometry(d.Latitude, d.Longitude),
			Properties: map[string]any{
				"id":          d.ID,
				"type":        string(d.Type),
				"title":       d.Title,
				"description": d.Description,
				"magnitude":   d.Magnitude,
				"alert_level": string(d.AlertLevel),
				"tags":        nonNilTags(d.Tags),
				"country":     d.Country,
				"source":      d.Source,
				"timestamp":   d.Timestamp,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func nearbyToGeoJSON(resp *proximity.Response) FeatureCollection {
	features := make([]Feature, 0, len(resp.Results))

	for _, r := range resp.Results {
		e := r.Entity
		props := map[string]any{
			"id":              e.ID,
			"kind":            e.Kind,
			"name":            e.Name,
			"type":            e.Type,
			"tags":            nonNilTags(e.Tags),
			"distance_meters": r.DistanceMeters,
			"distance_km":     r.DistanceKm,
		}
		if e.ScopeID != "" {
			props["disaster_id"] = e.ScopeID
		}
		features = append(features, Feature{
			Type:       "Feature",
			Geometry:   pointGeometry(e.Location.Latitude, e.Location.Longitude),
			Properties: props,
		})
	}

	count := resp.Count
	return FeatureCollection{
		Type:        "FeatureCollection",
		Features:    features,
		Count:       &count,
		BackendUsed: resp.Backend,
	}
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/geocode"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
)

type nearbyResult struct {
	models.Entity
	DistanceMeters float64 `json:"distance_meters"`
	DistanceKm     float64 `json:"distance_km"`
}

type nearbyResponse struct {
	Results          []nearbyResult    `json:"results"`
	Count            int               `json:"count"`
	Center           geo.Point         `json:"center"`
	RadiusMeters     float64           `json:"radius_meters"`
	BackendUsed      proximity.Backend `json:"backend_used"`
	ResolvedLocation string            `json:"resolved_location,omitempty"`
}

func newNearbyResponse(resp *proximity.Response, resolved string) nearbyResponse {
	out := nearbyResponse{
		Results:          make([]nearbyResult, 0, len(resp.Results)),
		Count:            resp.Count,
		Center:           resp.Center,
		RadiusMeters:     resp.RadiusMeters,
		BackendUsed:      resp.Backend,
		ResolvedLocation: resolved,
	}
	for _, r := range resp.Results {
		if r.Entity.Tags == nil {
			r.Entity.Tags = []string{}
		}
		out.Results = append(out.Results, nearbyResult{
			Entity:         r.Entity,
			DistanceMeters: r.DistanceMeters,
			DistanceKm:     r.DistanceKm,
		})
	}
	return out
}

func (h *Handler) nearby(kind models.EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, resolved, ok := h.parseNearby(c, kind)
		if !ok {
			return
		}

		resp, err := h.search.Search(c.Request.Context(), q)
		if err != nil {
			writeError(c, err)
			return
		}

		if c.Query("format") == "geojson" {
			c.Header("Content-Type", "application/geo+json")
			c.JSON(http.StatusOK, nearbyToGeoJSON(resp))
			return
		}
		c.JSON(http.StatusOK, newNearbyResponse(resp, resolved))
	}
}

// parseNearby reads the query string into a proximity.Query. On failure it has
// already written the response.
func (h *Handler) parseNearby(c *gin.Context, kind models.EntityKind) (proximity.Query, string, bool) {
	q := proximity.Query{
		Kind: kind,
		Type: c.Query("type"),
	}

	radius, err := requiredFloat(c, "radius")
	if err != nil {
		writeError(c, err)
		return q, "", false
	}
	q.RadiusMeters = radius

	if tags, ok := c.GetQuery("tags"); ok {
		q.Tags = strings.Split(tags, ",")
	}

	if id := c.Query("disaster_id"); id != "" {
		if kind != models.KindResource {
			writeError(c, &proximity.ValidationError{Field: "disaster_id", Reason: "only resources can be scoped to a disaster"})
			return q, "", false
		}
		q.ScopeID = id
	}

	var resolved string
	if loc := strings.TrimSpace(c.Query("location")); loc != "" && c.Query("lat") == "" && c.Query("lng") == "" {
		if h.geocoder == nil {
			writeError(c, &proximity.ValidationError{Field: "location", Reason: "geocoding is not configured; pass lat and lng"})
			return q, "", false
		}
		res, err := h.geocoder.Geocode(c.Request.Context(), loc)
		if errors.Is(err, geocode.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found", "location": loc})
			return q, "", false
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "geocoding failed"})
			return q, "", false
		}
		q.Center = res.Point
		resolved = res.DisplayName
		return q, resolved, true
	}

	lat, err := requiredFloat(c, "lat")
	if err != nil {
		writeError(c, err)
		return q, "", false
	}
	lng, err := requiredFloat(c, "lng")
	if err != nil {
		writeError(c, err)
		return q, "", false
	}
	q.Center = geo.NewPoint(lat, lng)
	return q, resolved, true
}

func requiredFloat(c *gin.Context, name string) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, &proximity.ValidationError{Field: name, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &proximity.ValidationError{Field: name, Reason: "must be a number"}
	}
	return v, nil
}

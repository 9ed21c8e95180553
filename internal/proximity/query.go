// Package proximity finds disasters and relief resources within a radius of
// a point. Searches run on the database's spatial index when PostGIS is
// usable and fall back to an in-process haversine scan when it is not.
package proximity

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type Backend string

const (
	BackendIndexed Backend = "indexed"
	BackendScan    Backend = "scan"
)

const (
	DefaultMaxRadiusMeters = 100_000.0

	maxTags      = 20
	maxTagLength = 64
)

// Query is one proximity search. Empty Tags, Type and ScopeID match all.
type Query struct {
	Kind         models.EntityKind
	Center       geo.Point
	RadiusMeters float64
	Tags         []string // match any
	Type         string
	ScopeID      string // parent disaster, resources only
}

type Result struct {
	Entity         models.Entity `json:"entity"`
	DistanceMeters float64       `json:"distance_meters"`
	DistanceKm     float64       `json:"distance_km"`
}

type Response struct {
	Results      []Result  `json:"results"`
	Count        int       `json:"count"`
	Center       geo.Point `json:"center"`
	RadiusMeters float64   `json:"radius_meters"`
	Backend      Backend   `json:"backend_used"`
}

// Executor runs a validated query against one backend and returns results
// sorted by ascending distance.
type Executor interface {
	Execute(ctx context.Context, q Query) ([]Result, error)
}

// RoundKm converts meters to kilometers rounded to two decimals.
func RoundKm(meters float64) float64 {
	return math.Round(meters/1000*100) / 100
}

// Normalize trims tags and drops duplicates, keeping first-seen order.
func (q Query) Normalize() Query {
	q.Type = strings.TrimSpace(q.Type)
	q.ScopeID = strings.TrimSpace(q.ScopeID)
	if len(q.Tags) == 0 {
		q.Tags = nil
		return q
	}
	tags := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		t = strings.TrimSpace(t)
		if !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	q.Tags = tags
	return q
}

func (q Query) Validate(maxRadius float64) error {
	switch q.Kind {
	case models.KindDisaster, models.KindResource:
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown entity kind %q", q.Kind)}
	}

	if err := q.Center.Validate(); err != nil {
		field := "longitude"
		if !validLatitude(q.Center.Latitude) {
			field = "latitude"
		}
		return &ValidationError{Field: field, Reason: err.Error()}
	}

	if math.IsNaN(q.RadiusMeters) || q.RadiusMeters <= 0 {
		return &ValidationError{Field: "radius", Reason: "must be greater than 0"}
	}
	if maxRadius > 0 && q.RadiusMeters > maxRadius {
		return &ValidationError{Field: "radius", Reason: fmt.Sprintf("must not exceed %.0f meters", maxRadius)}
	}

	if len(q.Tags) > maxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("at most %d tags allowed", maxTags)}
	}
	for _, t := range q.Tags {
		if t == "" {
			return &ValidationError{Field: "tags", Reason: "empty tag"}
		}
		if len(t) > maxTagLength {
			return &ValidationError{Field: "tags", Reason: fmt.Sprintf("tag longer than %d characters", maxTagLength)}
		}
	}

	if q.ScopeID != "" && q.Kind != models.KindResource {
		return &ValidationError{Field: "scope", Reason: "only resources can be scoped to a disaster"}
	}
	return nil
}

func validLatitude(lat float64) bool {
	return !math.IsNaN(lat) && !math.IsInf(lat, 0) && lat >= -90 && lat <= 90
}

// sortResults orders by distance, then id so equal distances are stable
// across backends.
func sortResults(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity.ID, b.Entity.ID)
	})
}

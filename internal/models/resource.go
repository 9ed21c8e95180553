package models

import (
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
)

// Resource is a relief resource (shelter, hospital, supply depot) attached to
// a disaster.
type Resource struct {
	ID           string
	DisasterID   string
	Name         string
	Type         string
	LocationName string
	Tags         []string
	Latitude     float64
	Longitude    float64
	CreatedAt    time.Time
}

func (r *Resource) Coordinates() geo.Point {
	return geo.NewPoint(r.Latitude, r.Longitude)
}

func (r *Resource) Entity() Entity {
	return Entity{
		ID:       r.ID,
		Kind:     KindResource,
		Name:     r.Name,
		Type:     r.Type,
		Tags:     r.Tags,
		Location: r.Coordinates(),
		ScopeID:  r.DisasterID,
	}
}

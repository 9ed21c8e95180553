package models

import (
	"fmt"
	"slices"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
)

type EntityKind string

const (
	KindDisaster EntityKind = "disaster"
	KindResource EntityKind = "resource"
)

func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindDisaster, KindResource:
		return EntityKind(s), nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// Entity is the searchable view of a disaster or resource record.
// ScopeID holds the parent disaster for resources and is empty for disasters.
type Entity struct {
	ID       string     `json:"id"`
	Kind     EntityKind `json:"kind"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Tags     []string   `json:"tags"`
	Location geo.Point  `json:"location"`
	ScopeID  string     `json:"scope_id,omitempty"`
}

// HasAnyTag reports whether the entity carries at least one of tags.
func (e *Entity) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(e.Tags, t) {
			return true
		}
	}
	return false
}

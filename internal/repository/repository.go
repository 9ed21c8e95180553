package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type Filter struct {
	Limit         int
	Offset        int
	Since         *time.Time
	Type          *models.DisasterType
	MinMagnitude  *float64
	AlertLevel    *models.AlertLevel
	MinAlertLevel *models.AlertLevel // >= this level (e.g., orange includes orange and red)
}

type DisasterRepository interface {
	Add(ctx context.Context, d *models.Disaster) error
	GetByID(ctx context.Context, id string) (*models.Disaster, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error)
}

type ResourceRepository interface {
	AddResource(ctx context.Context, r *models.Resource) error
	ListResources(ctx context.Context, disasterID string) ([]models.Resource, error)
}

// EntityReader returns every searchable entity of a kind. A non-empty scopeID
// narrows resources to one parent disaster; it is ignored for disasters.
type EntityReader interface {
	ListEntities(ctx context.Context, kind models.EntityKind, scopeID string) ([]models.Entity, error)
}

type RowScanner interface {
	Scan(dest ...any) error
}

// SpatialQuerier runs a raw query with bound arguments and calls each once per
// row. Errors are classified into *SpatialError.
type SpatialQuerier interface {
	QuerySpatial(ctx context.Context, query string, args []any, each func(RowScanner) error) error
}

// ExtensionChecker backs the capability probe: a registration check followed
// by a call that exercises the spatial functions for real.
type ExtensionChecker interface {
	ExtensionInstalled(ctx context.Context) (bool, error)
	ProbeSpatialFunction(ctx context.Context) error
}

type Store interface {
	DisasterRepository
	ResourceRepository
	EntityReader
	SpatialQuerier
	ExtensionChecker
	Close() error
}

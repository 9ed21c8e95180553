package proximity

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

type spatialTable struct {
	name        string
	nameColumn  string
	scopeColumn string
}

var spatialTables = map[models.EntityKind]spatialTable{
	models.KindDisaster: {name: "disasters", nameColumn: "title", scopeColumn: "''::text"},
	models.KindResource: {name: "resources", nameColumn: "name", scopeColumn: "t.disaster_id"},
}

// postgisSphereRadius is the mean radius PostGIS measures geography on when
// use_spheroid=false. It is about 8.77 m larger than geo.EarthRadiusMeters, so
// the bound radius and returned distances are rescaled to agree with the scan.
const postgisSphereRadius = 6371008.7714

var sphereScale = postgisSphereRadius / geo.EarthRadiusMeters

// The point expression matches the GIST expression index created by the
// Postgres migration.
//
// Optional filters are NULL-default parameters so the statement shape never
// changes: $4 scope, $5 tags (overlap), $6 type.
const indexedQueryTemplate = `
WITH center AS (
	SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS g
)
SELECT t.id, t.%[2]s, t.type, t.tags, t.latitude, t.longitude, %[3]s,
	ST_Distance(ST_SetSRID(ST_MakePoint(t.longitude, t.latitude), 4326)::geography, center.g, false) AS distance_m
FROM %[1]s t, center
WHERE ST_DWithin(ST_SetSRID(ST_MakePoint(t.longitude, t.latitude), 4326)::geography, center.g, $3, false)
	AND ($4::text IS NULL OR %[3]s = $4::text)
	AND ($5::text[] IS NULL OR t.tags && $5::text[])
	AND ($6::text IS NULL OR t.type = $6::text)
ORDER BY distance_m ASC, t.id ASC`

var indexedQueries = func() map[models.EntityKind]string {
	m := make(map[models.EntityKind]string, len(spatialTables))
	for kind, t := range spatialTables {
		m[kind] = fmt.Sprintf(indexedQueryTemplate, t.name, t.nameColumn, t.scopeColumn)
	}
	return m
}()

// IndexedBackend pushes distance computation, radius pruning and ordering
// down to PostGIS.
type IndexedBackend struct {
	querier repository.SpatialQuerier
}

func NewIndexedBackend(querier repository.SpatialQuerier) *IndexedBackend {
	return &IndexedBackend{querier: querier}
}

// buildIndexedQuery returns the statement and its bound arguments. Filter
// values only ever appear in args.
func buildIndexedQuery(q Query) (string, []any, error) {
	stmt, ok := indexedQueries[q.Kind]
	if !ok {
		return "", nil, fmt.Errorf("no spatial table for kind %q", q.Kind)
	}

	var scope, typ any
	if q.ScopeID != "" {
		scope = q.ScopeID
	}
	if q.Type != "" {
		typ = q.Type
	}
	var tags []string
	if len(q.Tags) > 0 {
		tags = q.Tags
	}

	args := []any{
		q.Center.Longitude,
		q.Center.Latitude,
		q.RadiusMeters * sphereScale,
		scope,
		pq.Array(tags), // nil slice binds as NULL
		typ,
	}
	return stmt, args, nil
}

func (b *IndexedBackend) Execute(ctx context.Context, q Query) ([]Result, error) {
	stmt, args, err := buildIndexedQuery(q)
	if err != nil {
		return nil, &QueryExecutionError{Backend: BackendIndexed, Err: err}
	}

	results := make([]Result, 0)
	err = b.querier.QuerySpatial(ctx, stmt, args, func(row repository.RowScanner) error {
		r := Result{Entity: models.Entity{Kind: q.Kind}}
		e := &r.Entity
		if err := row.Scan(&e.ID, &e.Name, &e.Type, pq.Array(&e.Tags), &e.Location.Latitude, &e.Location.Longitude,
			&e.ScopeID, &r.DistanceMeters); err != nil {
			return fmt.Errorf("error scanning spatial row: %w", err)
		}
		r.DistanceMeters /= sphereScale
		results = append(results, r)
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			switch kind := repository.KindOf(err); kind {
			case repository.SpatialExtensionMissing, repository.SpatialFunctionBroken:
				return nil, &BackendUnavailableError{Kind: kind, Err: err}
			}
		}
		return nil, &QueryExecutionError{Backend: BackendIndexed, Err: err}
	}

	// The database already sorted; re-sort only guards against a driver or
	// planner returning ties in a different order.
	sortResults(results)
	return results, nil
}

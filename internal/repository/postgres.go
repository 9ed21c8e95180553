package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type PostgresOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// PostgresDB stores entities in Postgres. When PostGIS is installed it also
// serves the indexed proximity path; without it only the scan path works.
type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	p := &PostgresDB{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}
	return p, nil
}

func (p *PostgresDB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			magnitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			alert_level TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			country TEXT NOT NULL DEFAULT '',
			report_url TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			raw BYTEA,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			disaster_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			location_name TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_disasters_timestamp ON disasters(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters(type)`,
		`CREATE INDEX IF NOT EXISTS idx_disasters_tags ON disasters USING GIN (tags)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_disaster_id ON resources(disaster_id)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_tags ON resources USING GIN (tags)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}

	// The expression must match the one used by proximity's indexed query
	// or the planner will not pick the index.
	spatial := []string{
		`CREATE INDEX IF NOT EXISTS idx_disasters_geog ON disasters USING GIST ((ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography))`,
		`CREATE INDEX IF NOT EXISTS idx_resources_geog ON resources USING GIST ((ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography))`,
	}
	for _, s := range spatial {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			slog.Warn("spatial index not created, indexed search will be unavailable", "error", classifyPostgres("create spatial index", err))
			break
		}
	}
	return nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) DB() *sql.DB {
	return p.db
}

func (p *PostgresDB) Add(ctx context.Context, d *models.Disaster) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disasters (id, source, type, title, description, magnitude, alert_level, tags,
			latitude, longitude, country, report_url, timestamp, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.Source, string(d.Type), d.Title, d.Description, d.Magnitude, string(d.AlertLevel), pq.Array(nonNilTags(d.Tags)),
		d.Latitude, d.Longitude, d.Country, d.ReportURL, d.Timestamp, d.Raw, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}
	return nil
}

const pgDisasterColumns = `id, source, type, title, description, magnitude, alert_level, tags,
	latitude, longitude, country, report_url, timestamp, raw, created_at`

func (p *PostgresDB) GetByID(ctx context.Context, id string) (*models.Disaster, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+pgDisasterColumns+" FROM disasters WHERE id = $1", id)
	d, err := scanPostgresDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting disaster %s: %w", id, err)
	}
	return d, nil
}

func (p *PostgresDB) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM disasters WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking disaster %s: %w", id, err)
	}
	return exists, nil
}

func (p *PostgresDB) ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error) {
	where, args := buildDisasterWhere(opts, dollar)
	page, pageArgs := buildLimitOffset(opts, len(args)+1, dollar)
	query := "SELECT " + pgDisasterColumns + " FROM disasters" + where + " ORDER BY timestamp DESC" + page

	rows, err := p.db.QueryContext(ctx, query, append(args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	defer rows.Close()

	var out []models.Disaster
	for rows.Next() {
		d, err := scanPostgresDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanPostgresDisaster(row RowScanner) (*models.Disaster, error) {
	var (
		d          models.Disaster
		typ, level string
	)
	err := row.Scan(&d.ID, &d.Source, &typ, &d.Title, &d.Description, &d.Magnitude, &level, pq.Array(&d.Tags),
		&d.Latitude, &d.Longitude, &d.Country, &d.ReportURL, &d.Timestamp, &d.Raw, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Type = models.DisasterType(typ)
	d.AlertLevel = models.AlertLevel(level)
	return &d, nil
}

func (p *PostgresDB) AddResource(ctx context.Context, r *models.Resource) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO resources (id, disaster_id, name, type, location_name, tags, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.DisasterID, r.Name, r.Type, r.LocationName, pq.Array(nonNilTags(r.Tags)), r.Latitude, r.Longitude, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting resource %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresDB) ListResources(ctx context.Context, disasterID string) ([]models.Resource, error) {
	query := `SELECT id, disaster_id, name, type, location_name, tags, latitude, longitude, created_at FROM resources`
	var args []any
	if disasterID != "" {
		query += " WHERE disaster_id = $1"
		args = append(args, disasterID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.DisasterID, &r.Name, &r.Type, &r.LocationName, pq.Array(&r.Tags), &r.Latitude, &r.Longitude, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresDB) ListEntities(ctx context.Context, kind models.EntityKind, scopeID string) ([]models.Entity, error) {
	var (
		query string
		args  []any
	)
	switch kind {
	case models.KindDisaster:
		query = `SELECT id, title, type, tags, latitude, longitude, '' FROM disasters`
	case models.KindResource:
		query = `SELECT id, name, type, tags, latitude, longitude, disaster_id FROM resources`
		if scopeID != "" {
			query += " WHERE disaster_id = $1"
			args = append(args, scopeID)
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e := models.Entity{Kind: kind}
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, pq.Array(&e.Tags), &e.Location.Latitude, &e.Location.Longitude, &e.ScopeID); err != nil {
			return nil, fmt.Errorf("error scanning %s entity: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresDB) ExtensionInstalled(ctx context.Context) (bool, error) {
	var installed bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'postgis')`).Scan(&installed)
	if err != nil {
		return false, classifyPostgres("extension check", err)
	}
	return installed, nil
}

// ProbeSpatialFunction measures one degree of longitude on the equator. A
// registered but broken PostGIS fails here with an undefined type/function.
func (p *PostgresDB) ProbeSpatialFunction(ctx context.Context) error {
	var meters float64
	err := p.db.QueryRowContext(ctx, `
		SELECT ST_Distance(
			ST_SetSRID(ST_MakePoint(0, 0), 4326)::geography,
			ST_SetSRID(ST_MakePoint(1, 0), 4326)::geography,
			false)`).Scan(&meters)
	if err != nil {
		return classifyPostgres("spatial probe", err)
	}
	if meters <= 0 {
		return &SpatialError{
			Kind: SpatialFunctionBroken,
			Op:   "spatial probe",
			Err:  fmt.Errorf("probe distance %v, want > 0", meters),
		}
	}
	return nil
}

func (p *PostgresDB) QuerySpatial(ctx context.Context, query string, args []any, each func(RowScanner) error) error {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classifyPostgres("spatial query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return classifyPostgres("spatial query rows", rows.Err())
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

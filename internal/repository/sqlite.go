package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteDB is the embedded store. It has no spatial extension, so proximity
// searches against it always take the scan path.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// :memory: databases are per-connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			magnitude REAL NOT NULL DEFAULT 0,
			alert_level TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			country TEXT NOT NULL DEFAULT '',
			report_url TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			raw BLOB,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			disaster_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			location_name TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_disasters_timestamp ON disasters(timestamp);
		CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters(type);
		CREATE INDEX IF NOT EXISTS idx_resources_disaster_id ON resources(disaster_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Add(ctx context.Context, d *models.Disaster) error {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disasters (id, source, type, title, description, magnitude, alert_level, tags,
			latitude, longitude, country, report_url, timestamp, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Source, string(d.Type), d.Title, d.Description, d.Magnitude, string(d.AlertLevel), tags,
		d.Latitude, d.Longitude, d.Country, d.ReportURL, d.Timestamp, d.Raw, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}
	return nil
}

const sqliteDisasterColumns = `id, source, type, title, description, magnitude, alert_level, tags,
	latitude, longitude, country, report_url, timestamp, raw, created_at`

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Disaster, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteDisasterColumns+" FROM disasters WHERE id = ?", id)
	d, err := scanSQLiteDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting disaster %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM disasters WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking disaster %s: %w", id, err)
	}
	return exists, nil
}

func (s *SQLiteDB) ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error) {
	where, args := buildDisasterWhere(opts, questionMark)
	page, pageArgs := buildLimitOffset(opts, len(args)+1, questionMark)
	query := "SELECT " + sqliteDisasterColumns + " FROM disasters" + where + " ORDER BY timestamp DESC" + page

	rows, err := s.db.QueryContext(ctx, query, append(args, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	defer rows.Close()

	var out []models.Disaster
	for rows.Next() {
		d, err := scanSQLiteDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanSQLiteDisaster(row RowScanner) (*models.Disaster, error) {
	var (
		d                models.Disaster
		typ, level, tags string
	)
	err := row.Scan(&d.ID, &d.Source, &typ, &d.Title, &d.Description, &d.Magnitude, &level, &tags,
		&d.Latitude, &d.Longitude, &d.Country, &d.ReportURL, &d.Timestamp, &d.Raw, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Type = models.DisasterType(typ)
	d.AlertLevel = models.AlertLevel(level)
	if d.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteDB) AddResource(ctx context.Context, r *models.Resource) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, disaster_id, name, type, location_name, tags, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DisasterID, r.Name, r.Type, r.LocationName, tags, r.Latitude, r.Longitude, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting resource %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteDB) ListResources(ctx context.Context, disasterID string) ([]models.Resource, error) {
	query := `SELECT id, disaster_id, name, type, location_name, tags, latitude, longitude, created_at FROM resources`
	var args []any
	if disasterID != "" {
		query += " WHERE disaster_id = ?"
		args = append(args, disasterID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		var (
			r    models.Resource
			tags string
		)
		if err := rows.Scan(&r.ID, &r.DisasterID, &r.Name, &r.Type, &r.LocationName, &tags, &r.Latitude, &r.Longitude, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning resource: %w", err)
		}
		if r.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) ListEntities(ctx context.Context, kind models.EntityKind, scopeID string) ([]models.Entity, error) {
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
			query += " WHERE disaster_id = ?"
			args = append(args, scopeID)
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e := models.Entity{Kind: kind}
		var tags string
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &tags, &e.Location.Latitude, &e.Location.Longitude, &e.ScopeID); err != nil {
			return nil, fmt.Errorf("error scanning %s entity: %w", kind, err)
		}
		if e.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) ExtensionInstalled(ctx context.Context) (bool, error) {
	return false, nil
}

func (s *SQLiteDB) ProbeSpatialFunction(ctx context.Context) error {
	return &SpatialError{Kind: SpatialExtensionMissing, Op: "spatial probe", Err: ErrNoSpatialSupport}
}

func (s *SQLiteDB) QuerySpatial(ctx context.Context, query string, args []any, each func(RowScanner) error) error {
	return &SpatialError{Kind: SpatialExtensionMissing, Op: "spatial query", Err: ErrNoSpatialSupport}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("error encoding tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	var tags []string
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("error decoding tags %q: %w", s, err)
	}
	return tags, nil
}

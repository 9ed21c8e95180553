package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SpatialErrorKind
	}{
		{"undefined function", &pq.Error{Code: "42883", Message: "function st_dwithin does not exist"}, SpatialFunctionBroken},
		{"undefined type", &pq.Error{Code: "42704", Message: `type "geography" does not exist`}, SpatialFunctionBroken},
		{"missing library", &pq.Error{Code: "58P01", Message: "could not access file"}, SpatialFunctionBroken},
		{"permission denied", &pq.Error{Code: "42501", Message: "permission denied for table pg_extension"}, SpatialPermissionDenied},
		{"undefined table", &pq.Error{Code: "42P01", Message: "relation does not exist"}, SpatialOther},
		{"wrapped pq error", fmt.Errorf("outer: %w", &pq.Error{Code: "42883"}), SpatialFunctionBroken},
		{"non driver error", errors.New("connection refused"), SpatialOther},
		{"context canceled", context.Canceled, SpatialOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyPostgres("op", tt.err)
			if got := KindOf(err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classified error should wrap the original")
			}
		})
	}

	if classifyPostgres("op", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != SpatialOther {
		t.Error("expected plain errors to classify as other")
	}
	if KindOf(nil) != SpatialOther {
		t.Error("expected nil to classify as other")
	}
}

func setupPostgres(t *testing.T) *PostgresDB {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewPostgresDB(ctx, dsn, PostgresOptions{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() {
		db.DB().Exec("DELETE FROM resources WHERE id LIKE 'pgtest_%'")
		db.DB().Exec("DELETE FROM disasters WHERE id LIKE 'pgtest_%'")
		db.Close()
	})
	return db
}

func TestPostgresDB_RoundTrip(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	d := &models.Disaster{ID: "pgtest_d1", Source: "test", Type: models.DisasterTypeFlood, Title: "Flood",
		Tags: []string{"flood", "urgent"}, Latitude: 40.7, Longitude: -74.0, Timestamp: now, CreatedAt: now}
	if err := db.Add(ctx, d); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := db.AddResource(ctx, &models.Resource{ID: "pgtest_r1", DisasterID: "pgtest_d1", Name: "Shelter",
		Type: "shelter", Latitude: 40.71, Longitude: -74.01, CreatedAt: now}); err != nil {
		t.Fatalf("AddResource failed: %v", err)
	}

	got, err := db.GetByID(ctx, "pgtest_d1")
	if err != nil || got == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", got.Tags)
	}

	entities, err := db.ListEntities(ctx, models.KindResource, "pgtest_d1")
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(entities) != 1 || entities[0].ScopeID != "pgtest_d1" {
		t.Errorf("unexpected entities: %+v", entities)
	}
}

func TestPostgresDB_Probe(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	installed, err := db.ExtensionInstalled(ctx)
	if err != nil {
		t.Fatalf("ExtensionInstalled failed: %v", err)
	}
	err = db.ProbeSpatialFunction(ctx)
	if installed && err != nil {
		t.Errorf("postgis installed but probe failed: %v", err)
	}
	if !installed && err == nil {
		t.Error("postgis missing but probe succeeded")
	}
}

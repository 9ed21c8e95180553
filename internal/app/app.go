// Package app wires storage, the proximity search stack and its supporting
// services from configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-disaster-proximity/internal/cache"
	"github.com/mr1hm/go-disaster-proximity/internal/config"
	"github.com/mr1hm/go-disaster-proximity/internal/geocode"
	"github.com/mr1hm/go-disaster-proximity/internal/observability"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

// OpenStore opens the configured database. SQLite stores only ever serve the
// scan path.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return repository.NewPostgresDB(ctx, cfg.PostgresDSN(), repository.PostgresOptions{
			MaxOpenConns: cfg.PGMaxOpenConns,
			MaxIdleConns: cfg.PGMaxIdleConns,
		})
	case config.DriverSQLite:
		return repository.NewSQLiteDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Search is the assembled proximity stack over one store.
type Search struct {
	Probe       *proximity.Probe
	Coordinator *proximity.Coordinator
	Harness     *proximity.Harness
}

type SearchOption func(*searchOptions)

type searchOptions struct {
	endpoint proximity.EndpointTimer
}

// WithEndpoint adds an HTTP round trip to every benchmark comparison.
func WithEndpoint(t proximity.EndpointTimer) SearchOption {
	return func(o *searchOptions) {
		o.endpoint = t
	}
}

// NewSearch builds the probe, both backends, the coordinator and the
// benchmark harness. A nil metrics records nothing.
func NewSearch(cfg *config.Config, store repository.Store, metrics *observability.Metrics, opts ...SearchOption) *Search {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	coordOpts := []proximity.CoordinatorOption{
		proximity.WithMaxRadius(cfg.Search.MaxRadiusMeters),
		proximity.WithRecorder(metrics),
	}
	harnessOpts := []proximity.HarnessOption{
		proximity.WithParallelism(cfg.Benchmark.Parallelism),
		proximity.WithHarnessMaxRadius(cfg.Search.MaxRadiusMeters),
		proximity.WithHarnessRecorder(metrics),
	}
	if o.endpoint != nil {
		harnessOpts = append(harnessOpts, proximity.WithEndpointTimer(o.endpoint))
	}

	probe := proximity.NewProbe(store, proximity.WithProbeRecorder(metrics))
	indexed := proximity.NewIndexedBackend(store)
	scan := proximity.NewScanBackend(store, proximity.WithBoundingBoxPrefilter(cfg.Search.BoundingBoxPrefilter))

	return &Search{
		Probe:       probe,
		Coordinator: proximity.NewCoordinator(probe, indexed, scan, coordOpts...),
		Harness:     proximity.NewHarness(probe, indexed, scan, harnessOpts...),
	}
}

// NewCacheStore returns Redis when enabled and reachable, otherwise an
// in-process LRU.
func NewCacheStore(ctx context.Context, cfg config.CacheConfig) cache.Store {
	if cfg.RedisEnabled {
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "disaster-proximity:",
		})
		if err == nil {
			return store
		}
		slog.Warn("redis unavailable, using in-process cache", "addr", cfg.RedisAddr(), "error", err)
	}
	return cache.NewMemoryStore(cfg.Size, cfg.TTL)
}

// NewGeocoder returns a cached Nominatim client, or nil when no geocoder URL
// is configured.
func NewGeocoder(cfg *config.Config, store cache.Store, metrics *observability.Metrics) geocode.Geocoder {
	if cfg.Geocoder.URL == "" {
		return nil
	}
	client := geocode.NewClient(cfg.Geocoder.URL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout, metrics)
	return geocode.NewCached(client, store, cfg.Cache.TTL, metrics)
}

package proximity

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

var (
	newYork = geo.Point{Latitude: 40.7128, Longitude: -74.0060}
	midtown = geo.Point{Latitude: 40.7589, Longitude: -73.9851}
	london  = geo.Point{Latitude: 51.5074, Longitude: -0.1278}
)

func entity(id string, kind models.EntityKind, at geo.Point, tags ...string) models.Entity {
	return models.Entity{ID: id, Kind: kind, Name: "name-" + id, Type: "shelter", Tags: tags, Location: at}
}

// memoryStore serves both the scan reader and the spatial querier from the
// same slice so the two backends see one dataset.
type memoryStore struct {
	mu       sync.Mutex
	entities []models.Entity
	listErr  error
	queryErr error
	queries  []string
	args     [][]any
	listCall atomic.Int32
}

func (s *memoryStore) ListEntities(ctx context.Context, kind models.EntityKind, scopeID string) ([]models.Entity, error) {
	s.listCall.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Entity
	for _, e := range s.entities {
		if e.Kind != kind {
			continue
		}
		if kind == models.KindResource && scopeID != "" && e.ScopeID != scopeID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// QuerySpatial emulates the PostGIS statement using the bound arguments only.
func (s *memoryStore) QuerySpatial(ctx context.Context, query string, args []any, each func(repository.RowScanner) error) error {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.queryErr != nil {
		return s.queryErr
	}
	if len(args) != 6 {
		return fmt.Errorf("expected 6 args, got %d", len(args))
	}

	center := geo.Point{Longitude: args[0].(float64), Latitude: args[1].(float64)}
	radius := args[2].(float64)
	scope, _ := args[3].(string)
	tags := []string(*args[4].(*pq.StringArray))
	typ, _ := args[5].(string)

	kind := models.KindDisaster
	if strings.Contains(query, "FROM resources") {
		kind = models.KindResource
	}

	type row struct {
		e models.Entity
		d float64
	}
	var rows []row
	s.mu.Lock()
	for _, e := range s.entities {
		if e.Kind != kind {
			continue
		}
		if scope != "" && e.ScopeID != scope {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		if tags != nil && !e.HasAnyTag(tags) {
			continue
		}
		// Measure on the PostGIS sphere, perturbed a little because PostGIS
		// computes in a different order of operations.
		d := geo.Distance(center, e.Location) * postgisSphereRadius / geo.EarthRadiusMeters * (1 + 1e-9)
		if d > radius {
			continue
		}
		rows = append(rows, row{e: e, d: d})
	}
	s.mu.Unlock()

	slices.SortFunc(rows, func(a, b row) int {
		switch {
		case a.d < b.d:
			return -1
		case a.d > b.d:
			return 1
		}
		return strings.Compare(a.e.ID, b.e.ID)
	})

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := each(fakeRow{e: r.e, d: r.d}); err != nil {
			return err
		}
	}
	return nil
}

type fakeRow struct {
	e models.Entity
	d float64
}

func (r fakeRow) Scan(dest ...any) error {
	values := []any{r.e.ID, r.e.Name, r.e.Type, r.e.Tags, r.e.Location.Latitude, r.e.Location.Longitude, r.e.ScopeID, r.d}
	if len(dest) != len(values) {
		return fmt.Errorf("expected %d destinations, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = values[i].(string)
		case *float64:
			*d = values[i].(float64)
		case *pq.StringArray:
			*d = slices.Clone(values[i].([]string))
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

type fakeChecker struct {
	installed    bool
	installedErr error
	probeErr     error
	calls        atomic.Int32
}

func (c *fakeChecker) ExtensionInstalled(ctx context.Context) (bool, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.installed, c.installedErr
}

func (c *fakeChecker) ProbeSpatialFunction(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.probeErr
}

type fakeCapability struct {
	available bool
	marked    []error
	mu        sync.Mutex
}

func (c *fakeCapability) Available(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *fakeCapability) Diagnostics(context.Context) Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available {
		return Diagnostics{Available: true, State: StateAvailable, Reason: "fake"}
	}
	return Diagnostics{State: StateUnavailable, Reason: "fake unavailable"}
}

func (c *fakeCapability) MarkUnavailable(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = false
	c.marked = append(c.marked, err)
}

type executorFunc func(ctx context.Context, q Query) ([]Result, error)

func (f executorFunc) Execute(ctx context.Context, q Query) ([]Result, error) {
	return f(ctx, q)
}

type recordingRecorder struct {
	mu        sync.Mutex
	searches  []string
	fallbacks int
	errors    []string
	available []bool
	benchmark []string
}

func (r *recordingRecorder) ObserveSearch(kind models.EntityKind, backend string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, string(kind)+"/"+backend)
}

func (r *recordingRecorder) IncFallback(models.EntityKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

func (r *recordingRecorder) IncSearchError(class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, class)
}

func (r *recordingRecorder) SetIndexedAvailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = append(r.available, v)
}

func (r *recordingRecorder) ObserveBenchmark(backend string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.benchmark = append(r.benchmark, backend)
}

func brokenFunctionErr() error {
	return &repository.SpatialError{
		Kind: repository.SpatialFunctionBroken,
		Op:   "spatial query",
		Err:  &pq.Error{Code: "42704", Message: `type "geography" does not exist`},
	}
}

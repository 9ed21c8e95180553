package proximity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowExecutor advances the fake clock by delay before delegating.
func slowExecutor(clock *clockwork.FakeClock, delay time.Duration, next Executor) Executor {
	return executorFunc(func(ctx context.Context, q Query) ([]Result, error) {
		clock.Advance(delay)
		return next.Execute(ctx, q)
	})
}

func TestHarness_CompareReportsFastest(t *testing.T) {
	store := &memoryStore{entities: []models.Entity{
		entity("a", models.KindDisaster, midtown),
		entity("b", models.KindDisaster, newYork),
	}}
	clock := clockwork.NewFakeClock()
	rec := &recordingRecorder{}
	h := NewHarness(&fakeCapability{available: true},
		slowExecutor(clock, 3*time.Millisecond, NewIndexedBackend(store)),
		slowExecutor(clock, 40*time.Millisecond, NewScanBackend(store)),
		WithHarnessClock(clock), WithHarnessRecorder(rec))

	cmp, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 10_000})
	require.NoError(t, err)

	assert.Equal(t, 3.0, cmp.Indexed.TimeMs)
	assert.Equal(t, 40.0, cmp.Scan.TimeMs)
	assert.Equal(t, 2, cmp.Indexed.Count)
	assert.Equal(t, 2, cmp.Scan.Count)
	assert.Equal(t, BackendIndexed, cmp.Fastest)
	require.NotNil(t, cmp.Consistent)
	assert.True(t, *cmp.Consistent)
	assert.Empty(t, cmp.Mismatched)
	assert.Nil(t, cmp.Endpoint)
	assert.Equal(t, []string{"indexed", "scan"}, rec.benchmark)
}

func TestHarness_SkipsIndexedWhenUnavailable(t *testing.T) {
	store := &memoryStore{entities: []models.Entity{entity("a", models.KindDisaster, midtown)}}
	h := NewHarness(&fakeCapability{available: false}, NewIndexedBackend(store), NewScanBackend(store))

	cmp, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 10_000})
	require.NoError(t, err)

	assert.True(t, cmp.Indexed.Skipped)
	assert.Equal(t, "fake unavailable", cmp.Indexed.Reason)
	assert.Zero(t, cmp.Indexed.TimeMs)
	assert.Equal(t, 1, cmp.Scan.Count)
	assert.Equal(t, BackendScan, cmp.Fastest, "a skipped path is not penalized, it just cannot win")
	assert.Nil(t, cmp.Consistent)
	assert.Empty(t, store.queries)
}

func TestHarness_ReportsMismatch(t *testing.T) {
	scan := NewScanBackend(&memoryStore{entities: []models.Entity{
		entity("a", models.KindDisaster, midtown),
		entity("b", models.KindDisaster, newYork),
	}})
	indexed := NewIndexedBackend(&memoryStore{entities: []models.Entity{
		entity("a", models.KindDisaster, midtown),
		entity("c", models.KindDisaster, newYork),
	}})
	h := NewHarness(&fakeCapability{available: true}, indexed, scan)

	cmp, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 10_000})
	require.NoError(t, err)

	require.NotNil(t, cmp.Consistent)
	assert.False(t, *cmp.Consistent)
	assert.Equal(t, []string{"b", "c"}, cmp.Mismatched)
}

func TestHarness_BackendErrorIsReportedNotReturned(t *testing.T) {
	store := &memoryStore{entities: []models.Entity{entity("a", models.KindDisaster, midtown)}}
	failing := executorFunc(func(context.Context, Query) ([]Result, error) {
		return nil, errors.New("connection refused")
	})
	h := NewHarness(&fakeCapability{available: true}, failing, NewScanBackend(store))

	cmp, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 10_000})
	require.NoError(t, err)

	assert.Contains(t, cmp.Indexed.Error, "connection refused")
	assert.Equal(t, BackendScan, cmp.Fastest)
	assert.Nil(t, cmp.Consistent)
}

func TestHarness_CompareValidates(t *testing.T) {
	h := NewHarness(&fakeCapability{}, nil, NewScanBackend(&memoryStore{}))

	_, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: -5})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestHarness_CompareBatch(t *testing.T) {
	var entities []models.Entity
	for i, loc := range BenchmarkLocations {
		for j := range i + 1 {
			p := geo.Point{Latitude: loc.Center.Latitude + float64(j)*0.01, Longitude: loc.Center.Longitude}
			entities = append(entities, entity(fmt.Sprintf("%02d-%02d", i, j), models.KindResource, p))
		}
	}
	store := &memoryStore{entities: entities}
	h := NewHarness(&fakeCapability{available: true}, NewIndexedBackend(store), NewScanBackend(store), WithParallelism(3))

	report, err := h.CompareBatch(context.Background(), models.KindResource, 20_000)
	require.NoError(t, err)

	require.Len(t, report.Locations, len(BenchmarkLocations))
	want := 0
	for i, loc := range report.Locations {
		assert.Equal(t, BenchmarkLocations[i].Name, loc.Location)
		assert.Equal(t, i+1, loc.ScanCount, loc.Location)
		assert.Equal(t, i+1, loc.IndexedCount, loc.Location)
		require.NotNil(t, loc.Consistent)
		assert.True(t, *loc.Consistent)
		want += i + 1
	}
	assert.Equal(t, want, report.TotalScan)
	assert.Equal(t, want, report.TotalIndexed)
	assert.False(t, report.IndexedSkipped)
	assert.Empty(t, report.Inconsistent)
	assert.Empty(t, report.Failed)
}

func TestHarness_CompareBatchWithoutIndex(t *testing.T) {
	h := NewHarness(&fakeCapability{}, nil, NewScanBackend(&memoryStore{}))

	report, err := h.CompareBatch(context.Background(), models.KindDisaster, 50_000)
	require.NoError(t, err)
	assert.True(t, report.IndexedSkipped)
	assert.Zero(t, report.TotalScan)

	_, err = h.CompareBatch(context.Background(), models.KindDisaster, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestHTTPEndpointTimer(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[],"count":7,"backend_used":"scan"}`))
	}))
	defer srv.Close()

	timer := NewHTTPEndpointTimer(srv.URL, time.Second)
	count, err := timer.TimeSearch(context.Background(), Query{Kind: models.KindResource, Center: newYork, RadiusMeters: 5000})
	require.NoError(t, err)

	assert.Equal(t, 7, count)
	assert.Equal(t, "/api/resources/nearby", gotPath)
	assert.Contains(t, gotQuery, "lat=40.7128")
	assert.Contains(t, gotQuery, "radius=5000")
	assert.NotContains(t, gotQuery, "tags")
}

func TestHTTPEndpointTimer_SendsFilters(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"count":0}`))
	}))
	defer srv.Close()

	_, err := NewHTTPEndpointTimer(srv.URL, time.Second).TimeSearch(context.Background(), Query{
		Kind:         models.KindResource,
		Center:       newYork,
		RadiusMeters: 5000,
		Tags:         []string{"flood", "urgent"},
		Type:         "shelter",
		ScopeID:      "d1",
	})
	require.NoError(t, err)

	assert.Equal(t, "flood,urgent", got.Get("tags"))
	assert.Equal(t, "shelter", got.Get("type"))
	assert.Equal(t, "d1", got.Get("disaster_id"))
	assert.Equal(t, "5000", got.Get("radius"))
}

func TestHTTPEndpointTimer_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPEndpointTimer(srv.URL, time.Second).TimeSearch(context.Background(),
		Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 5000})
	assert.ErrorContains(t, err, "500")
}

func TestHarness_IncludesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer srv.Close()

	store := &memoryStore{entities: []models.Entity{entity("a", models.KindDisaster, midtown)}}
	h := NewHarness(&fakeCapability{}, nil, NewScanBackend(store),
		WithEndpointTimer(NewHTTPEndpointTimer(srv.URL, time.Second)))

	cmp, err := h.Compare(context.Background(), Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 10_000})
	require.NoError(t, err)
	require.NotNil(t, cmp.Endpoint)
	assert.Equal(t, 1, cmp.Endpoint.Count)
	assert.Empty(t, cmp.Endpoint.Error)
}

package proximity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexedQuery_FixedShape(t *testing.T) {
	bare, bareArgs, err := buildIndexedQuery(Query{Kind: models.KindResource, Center: newYork, RadiusMeters: 1000})
	require.NoError(t, err)

	filtered, args, err := buildIndexedQuery(Query{
		Kind:         models.KindResource,
		Center:       newYork,
		RadiusMeters: 1000,
		Tags:         []string{"flood'; DROP TABLE resources; --"},
		Type:         "shelter",
		ScopeID:      "usgs-abc",
	})
	require.NoError(t, err)

	assert.Equal(t, bare, filtered, "optional filters must not change the statement")
	assert.NotContains(t, filtered, "DROP TABLE")
	assert.NotContains(t, filtered, "usgs-abc")
	assert.NotContains(t, filtered, "'shelter'")

	require.Len(t, bareArgs, 6)
	assert.Equal(t, newYork.Longitude, bareArgs[0], "PostGIS points are (lng, lat)")
	assert.Equal(t, newYork.Latitude, bareArgs[1])
	assert.InDelta(t, 1000*postgisSphereRadius/geo.EarthRadiusMeters, bareArgs[2], 1e-9, "radius is rescaled to the PostGIS sphere")
	assert.Nil(t, bareArgs[3])
	assert.Nil(t, []string(*bareArgs[4].(*pq.StringArray)))
	assert.Nil(t, bareArgs[5])

	assert.Equal(t, "usgs-abc", args[3])
	assert.Equal(t, []string{"flood'; DROP TABLE resources; --"}, []string(*args[4].(*pq.StringArray)))
	assert.Equal(t, "shelter", args[5])
}

func TestBuildIndexedQuery_PerKindTable(t *testing.T) {
	disasters, _, err := buildIndexedQuery(Query{Kind: models.KindDisaster})
	require.NoError(t, err)
	resources, _, err := buildIndexedQuery(Query{Kind: models.KindResource})
	require.NoError(t, err)

	assert.Contains(t, disasters, "FROM disasters")
	assert.Contains(t, resources, "FROM resources")
	assert.Contains(t, resources, "t.disaster_id")
	assert.True(t, strings.Contains(disasters, "false)"), "distance must use the sphere")

	_, _, err = buildIndexedQuery(Query{Kind: "volunteer"})
	assert.Error(t, err)
}

func TestIndexed_ScansRows(t *testing.T) {
	shelter := entity("shelter", models.KindResource, midtown, "flood", "urgent")
	shelter.ScopeID = "d1"
	store := &memoryStore{entities: []models.Entity{shelter, entity("london", models.KindResource, london)}}

	results, err := NewIndexedBackend(store).Execute(context.Background(),
		Query{Kind: models.KindResource, Center: newYork, RadiusMeters: 50_000})
	require.NoError(t, err)

	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, "shelter", got.Entity.ID)
	assert.Equal(t, models.KindResource, got.Entity.Kind)
	assert.Equal(t, "name-shelter", got.Entity.Name)
	assert.Equal(t, []string{"flood", "urgent"}, got.Entity.Tags)
	assert.Equal(t, "d1", got.Entity.ScopeID)
	assert.Equal(t, midtown, got.Entity.Location)
	assert.InDelta(t, 5420, got.DistanceMeters, 20)
}

// northOf returns the point the given scan distance due north of p.
func northOf(p geo.Point, meters float64) geo.Point {
	return geo.Point{Latitude: p.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi, Longitude: p.Longitude}
}

func TestIndexed_RadiusBoundaryMatchesScan(t *testing.T) {
	const radius = 100_000.0
	store := &memoryStore{entities: []models.Entity{
		entity("inside", models.KindDisaster, northOf(newYork, radius-0.1)),
		entity("outside", models.KindDisaster, northOf(newYork, radius+0.1)),
	}}
	q := Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: radius}

	indexed, err := NewIndexedBackend(store).Execute(context.Background(), q)
	require.NoError(t, err)
	scan, err := NewScanBackend(store).Execute(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, []string{"inside"}, ids(scan))
	assert.Equal(t, ids(scan), ids(indexed))
	require.Len(t, indexed, 1)
	assert.InDelta(t, scan[0].DistanceMeters, indexed[0].DistanceMeters, 1e-3)
	assert.LessOrEqual(t, indexed[0].DistanceMeters, radius)
}

func TestIndexed_ErrorMapping(t *testing.T) {
	q := Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 1000}

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"function broken", brokenFunctionErr(), true},
		{"extension missing", &repository.SpatialError{Kind: repository.SpatialExtensionMissing, Err: repository.ErrNoSpatialSupport}, true},
		{"permission denied", &repository.SpatialError{Kind: repository.SpatialPermissionDenied, Err: errors.New("denied")}, false},
		{"connection", &repository.SpatialError{Kind: repository.SpatialOther, Err: errors.New("connection refused")}, false},
		{"unclassified", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndexedBackend(&memoryStore{queryErr: tt.err}).Execute(context.Background(), q)
			require.Error(t, err)

			var unavailable *BackendUnavailableError
			var exec *QueryExecutionError
			if tt.unavailable {
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, repository.KindOf(tt.err), unavailable.Kind)
			} else {
				require.ErrorAs(t, err, &exec)
				assert.Equal(t, BackendIndexed, exec.Backend)
				assert.False(t, errors.As(err, &unavailable))
			}
		})
	}
}

func TestIndexed_CanceledIsNotUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewIndexedBackend(&memoryStore{}).Execute(ctx,
		Query{Kind: models.KindDisaster, Center: newYork, RadiusMeters: 1000})

	var unavailable *BackendUnavailableError
	assert.False(t, errors.As(err, &unavailable))
	assert.ErrorIs(t, err, context.Canceled)
}

// Both backends over the same dataset must agree on membership and order, and
// on distance within a meter.
func TestBackends_Consistent(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tagPool := []string{"flood", "urgent", "earthquake", "medical", "food"}
	typePool := []string{"shelter", "hospital", "depot"}

	var entities []models.Entity
	for i := range 2000 {
		e := entity(fmt.Sprintf("r%04d", i), models.KindResource, geo.Point{
			Latitude:  rng.Float64()*170 - 85,
			Longitude: rng.Float64()*360 - 180,
		}, tagPool[rng.IntN(len(tagPool))])
		e.Type = typePool[rng.IntN(len(typePool))]
		e.ScopeID = fmt.Sprintf("d%d", rng.IntN(3))
		entities = append(entities, e)
	}
	// A cluster so every query has something to find.
	for i := range 200 {
		e := entity(fmt.Sprintf("c%04d", i), models.KindResource, geo.Point{
			Latitude:  newYork.Latitude + rng.Float64() - 0.5,
			Longitude: newYork.Longitude + rng.Float64() - 0.5,
		}, tagPool[rng.IntN(len(tagPool))])
		e.Type = typePool[rng.IntN(len(typePool))]
		e.ScopeID = fmt.Sprintf("d%d", rng.IntN(3))
		entities = append(entities, e)
	}
	store := &memoryStore{entities: entities}
	indexed := NewIndexedBackend(store)
	scan := NewScanBackend(store)

	queries := []Query{
		{Kind: models.KindResource, Center: newYork, RadiusMeters: 30_000},
		{Kind: models.KindResource, Center: newYork, RadiusMeters: 100_000, Tags: []string{"flood", "medical"}},
		{Kind: models.KindResource, Center: newYork, RadiusMeters: 50_000, Type: "hospital", ScopeID: "d1"},
		{Kind: models.KindResource, Center: london, RadiusMeters: 100_000},
	}
	for _, q := range queries {
		a, err := indexed.Execute(context.Background(), q)
		require.NoError(t, err)
		b, err := scan.Execute(context.Background(), q)
		require.NoError(t, err)

		require.Equal(t, ids(a), ids(b), "query %+v", q)
		for i := range a {
			assert.InDelta(t, a[i].DistanceMeters, b[i].DistanceMeters, 1)
			assert.LessOrEqual(t, a[i].DistanceMeters, q.RadiusMeters)
			assert.LessOrEqual(t, b[i].DistanceMeters, q.RadiusMeters)
		}
	}
}

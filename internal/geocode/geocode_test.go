package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/cache"
	"github.com/mr1hm/go-disaster-proximity/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Lower Manhattan", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "proximity-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"40.7128","lon":"-74.0060","display_name":"Lower Manhattan, New York"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "proximity-test", time.Second, nil)
	r, err := c.Geocode(context.Background(), "Lower Manhattan")
	require.NoError(t, err)

	assert.Equal(t, 40.7128, r.Point.Latitude)
	assert.Equal(t, -74.0060, r.Point.Longitude)
	assert.Equal(t, "Lower Manhattan, New York", r.DisplayName)
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	m := observability.NewMetricsForTesting()
	_, err := NewClient(srv.URL, "ua", time.Second, m).Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("empty")))
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "ua", time.Second, nil).Geocode(context.Background(), "Paris")
	assert.ErrorContains(t, err, "429")
}

type countingGeocoder struct {
	calls  int
	result Result
	err    error
}

func (g *countingGeocoder) Geocode(context.Context, string) (Result, error) {
	g.calls++
	return g.result, g.err
}

func TestCached_MemoizesHits(t *testing.T) {
	inner := &countingGeocoder{result: Result{DisplayName: "Tokyo"}}
	inner.result.Point.Latitude = 35.6762
	inner.result.Point.Longitude = 139.6503
	m := observability.NewMetricsForTesting()
	c := NewCached(inner, cache.NewMemoryStore(16, time.Minute), time.Minute, m)

	first, err := c.Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	second, err := c.Geocode(context.Background(), "  tokyo ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("miss")))
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingGeocoder{err: ErrNotFound}
	c := NewCached(inner, cache.NewMemoryStore(16, time.Minute), time.Minute, nil)

	_, err := c.Geocode(context.Background(), "Atlantis")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, _ = c.Geocode(context.Background(), "Atlantis")
	assert.Equal(t, 2, inner.calls)
}

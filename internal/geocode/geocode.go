// Package geocode turns free-text place names into coordinates for nearby
// searches.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/cache"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
)

// ErrNotFound is returned when the geocoder has no match for the query.
var ErrNotFound = errors.New("location not found")

type Result struct {
	Point       geo.Point `json:"point"`
	DisplayName string    `json:"display_name"`
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

// Recorder receives geocoding telemetry.
type Recorder interface {
	IncGeocodeCache(hit bool)
	IncGeocodeRequest(outcome string)
}

// Client queries a Nominatim-compatible search API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	recorder   Recorder
}

func NewClient(baseURL, userAgent string, timeout time.Duration, recorder Recorder) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		recorder:   recorder,
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *Client) Geocode(ctx context.Context, query string) (Result, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("error")
		return Result{}, fmt.Errorf("error geocoding %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.record("error")
		return Result{}, fmt.Errorf("geocoder error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		c.record("error")
		return Result{}, fmt.Errorf("error decoding geocoder response: %w", err)
	}
	if len(places) == 0 {
		c.record("empty")
		return Result{}, ErrNotFound
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		c.record("error")
		return Result{}, fmt.Errorf("error parsing latitude %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		c.record("error")
		return Result{}, fmt.Errorf("error parsing longitude %q: %w", p.Lon, err)
	}

	c.record("success")
	return Result{Point: geo.Point{Latitude: lat, Longitude: lng}, DisplayName: p.DisplayName}, nil
}

func (c *Client) record(outcome string) {
	if c.recorder != nil {
		c.recorder.IncGeocodeRequest(outcome)
	}
}

// Cached memoizes successful lookups in a cache.Store. Misses and errors are
// not cached so they can be retried.
type Cached struct {
	inner    Geocoder
	store    cache.Store
	ttl      time.Duration
	recorder Recorder
}

func NewCached(inner Geocoder, store cache.Store, ttl time.Duration, recorder Recorder) *Cached {
	return &Cached{inner: inner, store: store, ttl: ttl, recorder: recorder}
}

func cacheKey(query string) string {
	return "geocode:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func (c *Cached) Geocode(ctx context.Context, query string) (Result, error) {
	key := cacheKey(query)

	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("geocode cache read failed", "key", key, "error", err)
	}
	if ok {
		var r Result
		if err := json.Unmarshal(b, &r); err == nil {
			c.recordCache(true)
			return r, nil
		}
	}
	c.recordCache(false)

	r, err := c.inner.Geocode(ctx, query)
	if err != nil {
		return r, err
	}

	if b, err := json.Marshal(r); err == nil {
		if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
			slog.Warn("geocode cache write failed", "key", key, "error", err)
		}
	}
	return r, nil
}

func (c *Cached) recordCache(hit bool) {
	if c.recorder != nil {
		c.recorder.IncGeocodeCache(hit)
	}
}

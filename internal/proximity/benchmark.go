package proximity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"golang.org/x/sync/errgroup"
)

const defaultBenchmarkParallelism = 4

// BenchmarkLocation is a named query center used by CompareBatch.
type BenchmarkLocation struct {
	Name   string    `json:"name"`
	Center geo.Point `json:"center"`
}

// BenchmarkLocations spreads batch runs across every inhabited continent and
// both sides of the antimeridian.
var BenchmarkLocations = []BenchmarkLocation{
	{Name: "New York", Center: geo.Point{Latitude: 40.7128, Longitude: -74.0060}},
	{Name: "Los Angeles", Center: geo.Point{Latitude: 34.0522, Longitude: -118.2437}},
	{Name: "Mexico City", Center: geo.Point{Latitude: 19.4326, Longitude: -99.1332}},
	{Name: "Sao Paulo", Center: geo.Point{Latitude: -23.5505, Longitude: -46.6333}},
	{Name: "London", Center: geo.Point{Latitude: 51.5074, Longitude: -0.1278}},
	{Name: "Istanbul", Center: geo.Point{Latitude: 41.0082, Longitude: 28.9784}},
	{Name: "Cairo", Center: geo.Point{Latitude: 30.0444, Longitude: 31.2357}},
	{Name: "Nairobi", Center: geo.Point{Latitude: -1.2921, Longitude: 36.8219}},
	{Name: "Mumbai", Center: geo.Point{Latitude: 19.0760, Longitude: 72.8777}},
	{Name: "Jakarta", Center: geo.Point{Latitude: -6.2088, Longitude: 106.8456}},
	{Name: "Tokyo", Center: geo.Point{Latitude: 35.6762, Longitude: 139.6503}},
	{Name: "Sydney", Center: geo.Point{Latitude: -33.8688, Longitude: 151.2093}},
	{Name: "Suva", Center: geo.Point{Latitude: -18.1248, Longitude: 178.4501}},
	{Name: "Anchorage", Center: geo.Point{Latitude: 61.2181, Longitude: -149.9003}},
}

// PathTiming is one backend's measurement. Skipped paths carry a Reason and
// no timing.
type PathTiming struct {
	TimeMs  float64 `json:"time_ms"`
	Count   int     `json:"count"`
	Skipped bool    `json:"skipped,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func (t PathTiming) measured() bool {
	return !t.Skipped && t.Error == ""
}

type Comparison struct {
	Query      Query       `json:"-"`
	Center     geo.Point   `json:"center"`
	Radius     float64     `json:"radius_meters"`
	Kind       string      `json:"kind"`
	Indexed    PathTiming  `json:"indexed"`
	Scan       PathTiming  `json:"scan"`
	Endpoint   *PathTiming `json:"endpoint,omitempty"`
	Fastest    Backend     `json:"fastest,omitempty"`
	Consistent *bool       `json:"consistent,omitempty"`
	// IDs present in one backend's results but not the other's.
	Mismatched []string `json:"mismatched,omitempty"`
}

type LocationReport struct {
	Location     string  `json:"location"`
	IndexedCount int     `json:"indexed_count"`
	ScanCount    int     `json:"scan_count"`
	IndexedMs    float64 `json:"indexed_ms"`
	ScanMs       float64 `json:"scan_ms"`
	Fastest      Backend `json:"fastest,omitempty"`
	Consistent   *bool   `json:"consistent,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type BatchReport struct {
	Kind           string           `json:"kind"`
	Radius         float64          `json:"radius_meters"`
	IndexedSkipped bool             `json:"indexed_skipped"`
	Locations      []LocationReport `json:"locations"`
	TotalIndexed   int              `json:"total_indexed"`
	TotalScan      int              `json:"total_scan"`
	IndexedMs      float64          `json:"indexed_ms"`
	ScanMs         float64          `json:"scan_ms"`
	Inconsistent   []string         `json:"inconsistent,omitempty"`
	Failed         []string         `json:"failed,omitempty"`
}

// EndpointTimer times a search through a deployed HTTP endpoint.
type EndpointTimer interface {
	TimeSearch(ctx context.Context, q Query) (count int, err error)
}

type HarnessOption func(*Harness)

func WithHarnessClock(clock clockwork.Clock) HarnessOption {
	return func(h *Harness) {
		h.clock = clock
	}
}

func WithEndpointTimer(t EndpointTimer) HarnessOption {
	return func(h *Harness) {
		h.endpoint = t
	}
}

func WithParallelism(n int) HarnessOption {
	return func(h *Harness) {
		if n > 0 {
			h.parallelism = n
		}
	}
}

func WithHarnessMaxRadius(meters float64) HarnessOption {
	return func(h *Harness) {
		if meters > 0 {
			h.maxRadius = meters
		}
	}
}

func WithHarnessRecorder(r Recorder) HarnessOption {
	return func(h *Harness) {
		if r != nil {
			h.recorder = r
		}
	}
}

// Harness times both backends against the same query. It is a diagnostics
// tool and is never on the request path.
type Harness struct {
	capability  Capability
	indexed     Executor
	scan        Executor
	endpoint    EndpointTimer
	clock       clockwork.Clock
	parallelism int
	maxRadius   float64
	recorder    Recorder
}

func NewHarness(capability Capability, indexed, scan Executor, opts ...HarnessOption) *Harness {
	h := &Harness{
		capability:  capability,
		indexed:     indexed,
		scan:        scan,
		clock:       clockwork.NewRealClock(),
		parallelism: defaultBenchmarkParallelism,
		maxRadius:   DefaultMaxRadiusMeters,
		recorder:    noopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Compare runs q on each backend in turn. A failing backend is reported in
// its PathTiming rather than failing the comparison; only an invalid query
// returns an error.
func (h *Harness) Compare(ctx context.Context, q Query) (*Comparison, error) {
	q = q.Normalize()
	if err := q.Validate(h.maxRadius); err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Query:  q,
		Center: q.Center,
		Radius: q.RadiusMeters,
		Kind:   string(q.Kind),
	}

	var indexedIDs []string
	if h.indexed != nil && h.capability != nil && h.capability.Available(ctx) {
		cmp.Indexed, indexedIDs = h.time(ctx, BackendIndexed, h.indexed, q)
	} else {
		reason := "spatial extension unavailable"
		if h.capability != nil {
			if d := h.capability.Diagnostics(ctx); d.Reason != "" {
				reason = d.Reason
			}
		}
		cmp.Indexed = PathTiming{Skipped: true, Reason: reason}
	}

	var scanIDs []string
	cmp.Scan, scanIDs = h.time(ctx, BackendScan, h.scan, q)

	if h.endpoint != nil {
		t := h.timeEndpoint(ctx, q)
		cmp.Endpoint = &t
	}

	cmp.Fastest = fastest(cmp.Indexed, cmp.Scan)
	if cmp.Indexed.measured() && cmp.Scan.measured() {
		consistent := slices.Equal(indexedIDs, scanIDs)
		cmp.Consistent = &consistent
		if !consistent {
			cmp.Mismatched = symmetricDifference(indexedIDs, scanIDs)
		}
	}
	return cmp, nil
}

// CompareBatch runs Compare for every BenchmarkLocation with bounded
// parallelism and aggregates the counts.
func (h *Harness) CompareBatch(ctx context.Context, kind models.EntityKind, radius float64) (*BatchReport, error) {
	probe := Query{Kind: kind, Center: BenchmarkLocations[0].Center, RadiusMeters: radius}
	if err := probe.Validate(h.maxRadius); err != nil {
		return nil, err
	}

	reports := make([]LocationReport, len(BenchmarkLocations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, loc := range BenchmarkLocations {
		g.Go(func() error {
			cmp, err := h.Compare(gctx, Query{Kind: kind, Center: loc.Center, RadiusMeters: radius})
			if err != nil {
				return fmt.Errorf("error comparing at %s: %w", loc.Name, err)
			}
			reports[i] = locationReport(loc.Name, cmp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := &BatchReport{Kind: string(kind), Radius: radius, Locations: reports, IndexedSkipped: true}
	for _, r := range reports {
		batch.TotalIndexed += r.IndexedCount
		batch.TotalScan += r.ScanCount
		batch.IndexedMs += r.IndexedMs
		batch.ScanMs += r.ScanMs
		if r.Consistent != nil {
			batch.IndexedSkipped = false
			if !*r.Consistent {
				batch.Inconsistent = append(batch.Inconsistent, r.Location)
			}
		}
		if r.Error != "" {
			batch.Failed = append(batch.Failed, r.Location)
		}
	}
	return batch, nil
}

func locationReport(name string, cmp *Comparison) LocationReport {
	r := LocationReport{
		Location:     name,
		IndexedCount: cmp.Indexed.Count,
		ScanCount:    cmp.Scan.Count,
		IndexedMs:    cmp.Indexed.TimeMs,
		ScanMs:       cmp.Scan.TimeMs,
		Fastest:      cmp.Fastest,
		Consistent:   cmp.Consistent,
	}
	switch {
	case cmp.Indexed.Error != "":
		r.Error = "indexed: " + cmp.Indexed.Error
	case cmp.Scan.Error != "":
		r.Error = "scan: " + cmp.Scan.Error
	}
	return r
}

func (h *Harness) time(ctx context.Context, backend Backend, exec Executor, q Query) (PathTiming, []string) {
	start := h.clock.Now()
	results, err := exec.Execute(ctx, q)
	elapsed := h.clock.Since(start)
	if err != nil {
		return PathTiming{TimeMs: elapsedMs(elapsed), Error: err.Error()}, nil
	}
	h.recorder.ObserveBenchmark(string(backend), elapsed)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entity.ID
	}
	return PathTiming{TimeMs: elapsedMs(elapsed), Count: len(results)}, ids
}

func (h *Harness) timeEndpoint(ctx context.Context, q Query) PathTiming {
	start := h.clock.Now()
	count, err := h.endpoint.TimeSearch(ctx, q)
	elapsed := h.clock.Since(start)
	if err != nil {
		return PathTiming{TimeMs: elapsedMs(elapsed), Error: err.Error()}
	}
	h.recorder.ObserveBenchmark("endpoint", elapsed)
	return PathTiming{TimeMs: elapsedMs(elapsed), Count: count}
}

// fastest picks the backend with the lower time among those that ran. Ties
// go to the indexed backend.
func fastest(indexed, scan PathTiming) Backend {
	switch {
	case indexed.measured() && scan.measured():
		if scan.TimeMs < indexed.TimeMs {
			return BackendScan
		}
		return BackendIndexed
	case indexed.measured():
		return BackendIndexed
	case scan.measured():
		return BackendScan
	default:
		return ""
	}
}

func symmetricDifference(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}

	var diff []string
	for _, id := range a {
		if !inB[id] {
			diff = append(diff, id)
		}
	}
	for _, id := range b {
		if !inA[id] {
			diff = append(diff, id)
		}
	}
	// Same set, different order.
	if len(diff) == 0 && !slices.Equal(a, b) {
		for i := range min(len(a), len(b)) {
			if a[i] != b[i] {
				diff = append(diff, a[i])
			}
		}
	}
	slices.Sort(diff)
	return slices.Compact(diff)
}

// HTTPEndpointTimer calls the service's own nearby endpoints.
type HTTPEndpointTimer struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPEndpointTimer(baseURL string, timeout time.Duration) *HTTPEndpointTimer {
	return &HTTPEndpointTimer{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPEndpointTimer) TimeSearch(ctx context.Context, q Query) (int, error) {
	path := "/api/disasters/nearby"
	if q.Kind == models.KindResource {
		path = "/api/resources/nearby"
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(q.Center.Latitude, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(q.Center.Longitude, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(q.RadiusMeters, 'f', -1, 64))
	if len(q.Tags) > 0 {
		params.Set("tags", strings.Join(q.Tags, ","))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.ScopeID != "" {
		params.Set("disaster_id", q.ScopeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error calling endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("error decoding response: %w", err)
	}
	return body.Count, nil
}

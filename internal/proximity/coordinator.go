package proximity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type CoordinatorOption func(*Coordinator)

// WithMaxRadius sets the radius ceiling in meters. Zero or negative keeps the
// default.
func WithMaxRadius(meters float64) CoordinatorOption {
	return func(c *Coordinator) {
		if meters > 0 {
			c.maxRadius = meters
		}
	}
}

func WithRecorder(r Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithCoordinatorClock(clock clockwork.Clock) CoordinatorOption {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// Coordinator is the entry point for proximity searches. It prefers the
// indexed backend and switches to the scan backend once the indexed backend
// reports its spatial functions missing or broken.
type Coordinator struct {
	capability Capability
	indexed    Executor
	scan       Executor
	maxRadius  float64
	recorder   Recorder
	clock      clockwork.Clock
}

func NewCoordinator(capability Capability, indexed, scan Executor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		capability: capability,
		indexed:    indexed,
		scan:       scan,
		maxRadius:  DefaultMaxRadiusMeters,
		recorder:   noopRecorder{},
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) MaxRadius() float64 {
	return c.maxRadius
}

// Search validates q, runs it on the best available backend and returns the
// results nearest first. A failure on both backends is an error, never an
// empty result.
func (c *Coordinator) Search(ctx context.Context, q Query) (*Response, error) {
	q = q.Normalize()
	if err := q.Validate(c.maxRadius); err != nil {
		c.recorder.IncSearchError("validation")
		return nil, err
	}

	start := c.clock.Now()
	results, backend, err := c.execute(ctx, q)
	if err != nil {
		c.recorder.IncSearchError(errorClass(err))
		return nil, err
	}
	c.recorder.ObserveSearch(q.Kind, string(backend), c.clock.Since(start))

	for i := range results {
		results[i].DistanceKm = RoundKm(results[i].DistanceMeters)
	}
	if results == nil {
		results = []Result{}
	}

	return &Response{
		Results:      results,
		Count:        len(results),
		Center:       q.Center,
		RadiusMeters: q.RadiusMeters,
		Backend:      backend,
	}, nil
}

func (c *Coordinator) execute(ctx context.Context, q Query) ([]Result, Backend, error) {
	if c.indexed != nil && c.capability != nil && c.capability.Available(ctx) {
		results, err := c.indexed.Execute(ctx, q)
		if err == nil {
			return results, BackendIndexed, nil
		}

		var unavailable *BackendUnavailableError
		if !errors.As(err, &unavailable) {
			return nil, BackendIndexed, asExecutionError(BackendIndexed, err)
		}
		c.capability.MarkUnavailable(unavailable)
		c.recorder.IncFallback(q.Kind)
		slog.Debug("falling back to scan", "kind", q.Kind, "error", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, BackendScan, &QueryExecutionError{Backend: BackendScan, Err: err}
	}
	results, err := c.scan.Execute(ctx, q)
	if err != nil {
		return nil, BackendScan, asExecutionError(BackendScan, err)
	}
	return results, BackendScan, nil
}

func asExecutionError(backend Backend, err error) error {
	var exec *QueryExecutionError
	if errors.As(err, &exec) {
		return err
	}
	return &QueryExecutionError{Backend: backend, Err: err}
}

func errorClass(err error) string {
	var validation *ValidationError
	var exec *QueryExecutionError
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &exec):
		return "execution_" + string(exec.Backend)
	default:
		return "other"
	}
}

// elapsedMs converts a duration to fractional milliseconds.
func elapsedMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

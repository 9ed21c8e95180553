package proximity

import (
	"context"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

// ctxCheckEvery bounds how many entities are measured between cancellation
// checks.
const ctxCheckEvery = 1024

type ScanOption func(*ScanBackend)

// WithBoundingBoxPrefilter skips the haversine call for entities outside a
// conservative rectangle around the center.
func WithBoundingBoxPrefilter(enabled bool) ScanOption {
	return func(b *ScanBackend) {
		b.bboxPrefilter = enabled
	}
}

// ScanBackend loads every candidate and measures it in process. It is always
// available and is the fallback for IndexedBackend. It reads whatever the
// store returns at that moment; rows written concurrently may or may not be
// seen.
type ScanBackend struct {
	reader        repository.EntityReader
	bboxPrefilter bool
}

func NewScanBackend(reader repository.EntityReader, opts ...ScanOption) *ScanBackend {
	b := &ScanBackend{reader: reader}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *ScanBackend) Execute(ctx context.Context, q Query) ([]Result, error) {
	entities, err := b.reader.ListEntities(ctx, q.Kind, q.ScopeID)
	if err != nil {
		return nil, &QueryExecutionError{Backend: BackendScan, Err: err}
	}

	var box geo.BoundingBox
	if b.bboxPrefilter {
		box = geo.BoundingBoxAround(q.Center, q.RadiusMeters)
	}

	results := make([]Result, 0)
	for i := range entities {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &QueryExecutionError{Backend: BackendScan, Err: err}
			}
		}

		e := &entities[i]
		if q.ScopeID != "" && e.ScopeID != q.ScopeID {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if len(q.Tags) > 0 && !e.HasAnyTag(q.Tags) {
			continue
		}
		if b.bboxPrefilter && !box.Contains(e.Location) {
			continue
		}

		d := geo.Distance(e.Location, q.Center)
		if d > q.RadiusMeters {
			continue
		}
		results = append(results, Result{Entity: *e, DistanceMeters: d})
	}

	sortResults(results)
	return results, nil
}

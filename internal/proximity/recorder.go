package proximity

import (
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

// Recorder receives search telemetry. observability.Metrics implements it.
type Recorder interface {
	ObserveSearch(kind models.EntityKind, backend string, d time.Duration)
	IncFallback(kind models.EntityKind)
	IncSearchError(class string)
	SetIndexedAvailable(available bool)
	ObserveBenchmark(backend string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveSearch(models.EntityKind, string, time.Duration) {}
func (noopRecorder) IncFallback(models.EntityKind)                          {}
func (noopRecorder) IncSearchError(string)                                  {}
func (noopRecorder) SetIndexedAvailable(bool)                               {}
func (noopRecorder) ObserveBenchmark(string, time.Duration)                 {}

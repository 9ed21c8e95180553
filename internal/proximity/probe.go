package proximity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

type ProbeState string

const (
	StateUnknown     ProbeState = "unknown"
	StateUnavailable ProbeState = "unavailable"
	StateBroken      ProbeState = "broken"
	StateAvailable   ProbeState = "available"
)

const brokenRemediation = "PostGIS is registered but its functions fail. " +
	"Run ALTER EXTENSION postgis UPDATE, or reinstall the postgis package matching the server version, then re-probe."

const permissionRemediation = "The database role cannot read pg_extension. Grant it read access or run the probe as the schema owner."

type Diagnostics struct {
	Available   bool       `json:"available"`
	State       ProbeState `json:"state"`
	Reason      string     `json:"reason"`
	Remediation string     `json:"remediation,omitempty"`
	CheckedAt   time.Time  `json:"checked_at"`
}

// Capability reports whether the indexed backend may be used.
type Capability interface {
	Available(ctx context.Context) bool
	Diagnostics(ctx context.Context) Diagnostics
	MarkUnavailable(err error)
}

type ProbeOption func(*Probe)

func WithProbeClock(c clockwork.Clock) ProbeOption {
	return func(p *Probe) {
		p.clock = c
	}
}

func WithProbeRecorder(r Recorder) ProbeOption {
	return func(p *Probe) {
		p.recorder = r
	}
}

// Probe caches whether the spatial extension is usable. The first call probes
// the database; later calls reuse the answer until Reprobe or MarkUnavailable.
type Probe struct {
	checker  repository.ExtensionChecker
	clock    clockwork.Clock
	recorder Recorder

	probeMu sync.Mutex // serializes probe cycles

	mu     sync.RWMutex
	diag   Diagnostics
	probed bool
}

func NewProbe(checker repository.ExtensionChecker, opts ...ProbeOption) *Probe {
	p := &Probe{
		checker:  checker,
		clock:    clockwork.NewRealClock(),
		recorder: noopRecorder{},
		diag:     Diagnostics{State: StateUnknown, Reason: "not probed yet"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Probe) Available(ctx context.Context) bool {
	return p.Diagnostics(ctx).Available
}

// Diagnostics returns the cached result, probing first if nothing is cached.
func (p *Probe) Diagnostics(ctx context.Context) Diagnostics {
	if d, ok := p.cached(); ok {
		return d
	}

	p.probeMu.Lock()
	defer p.probeMu.Unlock()
	if d, ok := p.cached(); ok {
		return d
	}
	return p.run(ctx)
}

// Reprobe discards the cached result and checks the database again.
func (p *Probe) Reprobe(ctx context.Context) Diagnostics {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()
	return p.run(ctx)
}

// MarkUnavailable records a spatial failure seen while serving a query. Only
// the first failure after a successful probe is logged.
func (p *Probe) MarkUnavailable(err error) {
	kind := repository.KindOf(err)
	var unavailable *BackendUnavailableError
	if errors.As(err, &unavailable) {
		kind = unavailable.Kind
	}

	state := StateUnavailable
	remediation := ""
	if kind == repository.SpatialFunctionBroken {
		state = StateBroken
		remediation = brokenRemediation
	}

	p.mu.Lock()
	wasAvailable := !p.probed || p.diag.Available
	if !wasAvailable {
		p.mu.Unlock()
		return
	}
	p.diag = Diagnostics{
		State:       state,
		Reason:      err.Error(),
		Remediation: remediation,
		CheckedAt:   p.clock.Now(),
	}
	p.probed = true
	p.mu.Unlock()

	p.recorder.SetIndexedAvailable(false)
	slog.Warn("indexed backend failed during search, switching to scan until re-probe",
		"state", state, "error", err)
}

func (p *Probe) cached() (Diagnostics, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.diag, p.probed
}

// run must be called with probeMu held.
func (p *Probe) run(ctx context.Context) Diagnostics {
	d := p.check(ctx)
	d.CheckedAt = p.clock.Now()

	// A canceled caller says nothing about the database; don't cache it.
	if ctx.Err() != nil {
		return d
	}

	p.mu.Lock()
	p.diag = d
	p.probed = true
	p.mu.Unlock()

	p.recorder.SetIndexedAvailable(d.Available)
	switch d.State {
	case StateAvailable:
		slog.Info("spatial backend available", "reason", d.Reason)
	case StateBroken:
		slog.Warn("spatial extension registered but broken", "reason", d.Reason, "remediation", d.Remediation)
	default:
		slog.Info("spatial backend unavailable, using scan", "reason", d.Reason)
	}
	return d
}

func (p *Probe) check(ctx context.Context) Diagnostics {
	installed, err := p.checker.ExtensionInstalled(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Diagnostics{State: StateUnknown, Reason: ctx.Err().Error()}
		}
		if repository.KindOf(err) == repository.SpatialPermissionDenied {
			return Diagnostics{
				State:       StateUnavailable,
				Reason:      "permission denied checking extension registration: " + err.Error(),
				Remediation: permissionRemediation,
			}
		}
		return Diagnostics{State: StateUnavailable, Reason: "extension check failed: " + err.Error()}
	}
	if !installed {
		return Diagnostics{State: StateUnavailable, Reason: "spatial extension not registered"}
	}

	err = p.checker.ProbeSpatialFunction(ctx)
	if err == nil {
		return Diagnostics{Available: true, State: StateAvailable, Reason: "extension registered and functional"}
	}
	if ctx.Err() != nil {
		return Diagnostics{State: StateUnknown, Reason: ctx.Err().Error()}
	}

	switch repository.KindOf(err) {
	case repository.SpatialFunctionBroken, repository.SpatialExtensionMissing:
		return Diagnostics{State: StateBroken, Reason: err.Error(), Remediation: brokenRemediation}
	case repository.SpatialPermissionDenied:
		return Diagnostics{State: StateBroken, Reason: err.Error(), Remediation: permissionRemediation}
	default:
		return Diagnostics{State: StateUnavailable, Reason: "functional probe failed: " + err.Error()}
	}
}

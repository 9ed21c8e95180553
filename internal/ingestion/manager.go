package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-disaster-proximity/internal/config"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
	"github.com/mr1hm/go-disaster-proximity/internal/worker"
)

const (
	sourceUSGS  = "usgs"
	sourceGDACS = "gdacs"
)

// Recorder counts newly stored disasters.
type Recorder interface {
	IncIngested(source string)
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// Manager polls the disaster feeds and stores new events so proximity
// searches have something to find.
type Manager struct {
	cfg      *config.Config
	repo     repository.DisasterRepository
	client   *http.Client
	clock    clockwork.Clock
	recorder Recorder
	pool     *worker.WorkerPool[*models.Disaster]
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.DisasterRepository, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		repo:   repo,
		client: &http.Client{Timeout: 15 * time.Second},
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) store(ctx context.Context, disaster *models.Disaster) error {
	exists, err := m.repo.Exists(ctx, disaster.ID)
	if err != nil {
		return fmt.Errorf("error checking existence of %s: %w", disaster.ID, err)
	}
	if exists {
		return nil
	}

	if err := m.repo.Add(ctx, disaster); err != nil {
		return fmt.Errorf("error adding disaster %s: %w", disaster.ID, err)
	}
	if m.recorder != nil {
		m.recorder.IncIngested(disaster.Source)
	}

	slog.Info("added disaster", "id", disaster.ID, "type", disaster.Type, "source", disaster.Source, "tags", disaster.Tags)
	return nil
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewWorkerPool("ingestion", m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.store)
	m.pool.Start(ctx)

	if m.cfg.Sources.USGSEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, sourceUSGS, m.cfg.Sources.USGSURL, m.cfg.Sources.USGSPollInterval)
	}

	if m.cfg.Sources.GDACSEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, sourceGDACS, m.cfg.Sources.GDACSURL, m.cfg.Sources.GDACSPollInterval)
	}
}

func (m *Manager) runPoller(ctx context.Context, source, url string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "source", source, "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, source, url)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", source)
			return
		case <-ticker.Chan():
			m.poll(ctx, source, url)
		}
	}
}

func (m *Manager) poll(ctx context.Context, source, url string) {
	slog.Debug("polling", "source", source)

	disasters, err := m.fetch(ctx, source, url)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("poll failed", "source", source, "error", err)
		}
		return
	}

	now := m.clock.Now()
	for _, d := range disasters {
		d.CreatedAt = now
		d.Tags = DeriveTags(d)
		if err := m.pool.Submit(ctx, d); err != nil {
			return
		}
	}

	slog.Debug("poll complete", "source", source, "count", len(disasters))
}

func (m *Manager) fetch(ctx context.Context, source, url string) ([]*models.Disaster, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var parse func(io.Reader) ([]*models.Disaster, error)
	switch source {
	case sourceUSGS:
		parse = parseUSGS
	case sourceGDACS:
		parse = parseGDACS
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
	return parse(resp.Body)
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}

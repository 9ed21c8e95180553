package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr1hm/go-disaster-proximity/internal/geocode"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

// Searcher runs proximity searches. *proximity.Coordinator implements it.
type Searcher interface {
	Search(ctx context.Context, q proximity.Query) (*proximity.Response, error)
	MaxRadius() float64
}

// Prober exposes the spatial capability to operators. *proximity.Probe
// implements it.
type Prober interface {
	Diagnostics(ctx context.Context) proximity.Diagnostics
	Reprobe(ctx context.Context) proximity.Diagnostics
}

// Benchmarker is implemented by *proximity.Harness.
type Benchmarker interface {
	Compare(ctx context.Context, q proximity.Query) (*proximity.Comparison, error)
	CompareBatch(ctx context.Context, kind models.EntityKind, radius float64) (*proximity.BatchReport, error)
}

type Store interface {
	repository.DisasterRepository
	repository.ResourceRepository
}

type Option func(*Handler)

func WithGeocoder(g geocode.Geocoder) Option {
	return func(h *Handler) {
		h.geocoder = g
	}
}

func WithDiagnostics(p Prober, b Benchmarker) Option {
	return func(h *Handler) {
		h.prober = p
		h.bench = b
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

type Handler struct {
	repo     Store
	search   Searcher
	geocoder geocode.Geocoder
	prober   Prober
	bench    Benchmarker
	metrics  http.Handler
}

func NewHandler(repo Store, search Searcher, opts ...Option) *Handler {
	h := &Handler{
		repo:   repo,
		search: search,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.GET("/disasters", h.getDisasters)
	api.GET("/disasters/nearby", h.nearby(models.KindDisaster))
	api.GET("/disasters/:id/resources", h.getResources)
	api.GET("/resources/nearby", h.nearby(models.KindResource))
	api.POST("/resources", h.createResource)

	if h.prober != nil {
		diag := api.Group("/diagnostics")
		diag.GET("/spatial", h.spatialDiagnostics)
		diag.POST("/spatial/reprobe", h.reprobe)
		if h.bench != nil {
			diag.GET("/benchmark", h.benchmark)
			diag.GET("/benchmark/batch", h.benchmarkBatch)
		}
	}

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

func (h *Handler) getDisasters(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 disasters if limit param not supplied
	}

	if t := c.Query("type"); t != "" {
		if dt, ok := parseDisasterType(t); ok {
			filter.Type = &dt
		}
	}
	if m := c.Query("min_magnitude"); m != "" {
		if mag, err := strconv.ParseFloat(m, 64); err == nil {
			filter.MinMagnitude = &mag
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if al := c.Query("alert_level"); al != "" {
		if level, ok := parseAlertLevel(al); ok {
			filter.AlertLevel = &level
		}
	}
	if mal := c.Query("min_alert_level"); mal != "" {
		if level, ok := parseAlertLevel(mal); ok {
			filter.MinAlertLevel = &level
		}
	}

	disasters, err := h.repo.ListDisasters(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error listing disasters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch disasters",
		})
		return
	}

	fc := toGeoJSON(disasters)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.prober != nil {
		resp["spatial"] = h.prober.Diagnostics(c.Request.Context()).State
	}
	c.JSON(http.StatusOK, resp)
}

func parseDisasterType(s string) (models.DisasterType, bool) {
	switch dt := models.DisasterType(strings.ToLower(s)); dt {
	case models.DisasterTypeEarthquake, models.DisasterTypeFlood, models.DisasterTypeCyclone,
		models.DisasterTypeTsunami, models.DisasterTypeVolcano, models.DisasterTypeWildfire,
		models.DisasterTypeDrought:
		return dt, true
	default:
		return "", false
	}
}

func parseAlertLevel(s string) (models.AlertLevel, bool) {
	level := models.AlertLevel(strings.ToLower(s))
	return level, level.Rank() > 0
}

// writeError maps proximity errors to status codes. Execution failures are
// logged and reported without internal detail.
func writeError(c *gin.Context, err error) {
	var verr *proximity.ValidationError
	var exec *proximity.QueryExecutionError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "search timed out"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	case errors.As(err, &exec):
		slog.Error("search failed", "backend", exec.Backend, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed", "backend": exec.Backend})
	default:
		slog.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

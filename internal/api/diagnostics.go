package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
)

const defaultBenchmarkRadius = 50_000.0

func (h *Handler) spatialDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.prober.Diagnostics(c.Request.Context()))
}

func (h *Handler) reprobe(c *gin.Context) {
	c.JSON(http.StatusOK, h.prober.Reprobe(c.Request.Context()))
}

func (h *Handler) benchmark(c *gin.Context) {
	kind, ok := benchmarkKind(c)
	if !ok {
		return
	}
	radius, ok := benchmarkRadius(c)
	if !ok {
		return
	}
	lat, err := requiredFloat(c, "lat")
	if err != nil {
		writeError(c, err)
		return
	}
	lng, err := requiredFloat(c, "lng")
	if err != nil {
		writeError(c, err)
		return
	}

	q := proximity.Query{Kind: kind, Center: geo.NewPoint(lat, lng), RadiusMeters: radius}
	if tags := c.Query("tags"); tags != "" {
		q.Tags = strings.Split(tags, ",")
	}

	cmp, err := h.bench.Compare(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) benchmarkBatch(c *gin.Context) {
	kind, ok := benchmarkKind(c)
	if !ok {
		return
	}
	radius, ok := benchmarkRadius(c)
	if !ok {
		return
	}

	report, err := h.bench.CompareBatch(c.Request.Context(), kind, radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func benchmarkKind(c *gin.Context) (models.EntityKind, bool) {
	raw := c.DefaultQuery("kind", string(models.KindResource))
	kind, err := models.ParseEntityKind(raw)
	if err != nil {
		writeError(c, &proximity.ValidationError{Field: "kind", Reason: err.Error()})
		return "", false
	}
	return kind, true
}

func benchmarkRadius(c *gin.Context) (float64, bool) {
	raw := c.Query("radius")
	if raw == "" {
		return defaultBenchmarkRadius, true
	}
	radius, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(c, &proximity.ValidationError{Field: "radius", Reason: "must be a number"})
		return 0, false
	}
	return radius, true
}

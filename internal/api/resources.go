package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type createResourceRequest struct {
	DisasterID   string   `json:"disaster_id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Type         string   `json:"type" binding:"required"`
	LocationName string   `json:"location_name"`
	Tags         []string `json:"tags"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
}

type resourceResponse struct {
	ID           string    `json:"id"`
	DisasterID   string    `json:"disaster_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	LocationName string    `json:"location_name,omitempty"`
	Tags         []string  `json:"tags"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CreatedAt    time.Time `json:"created_at"`
}

func toResourceResponse(r *models.Resource) resourceResponse {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return resourceResponse{
		ID:           r.ID,
		DisasterID:   r.DisasterID,
		Name:         r.Name,
		Type:         r.Type,
		LocationName: r.LocationName,
		Tags:         tags,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		CreatedAt:    r.CreatedAt,
	}
}

func (h *Handler) createResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := geo.NewPoint(*req.Latitude, *req.Longitude)
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	exists, err := h.repo.Exists(ctx, req.DisasterID)
	if err != nil {
		slog.Error("error checking disaster", "id", req.DisasterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create resource"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "disaster not found"})
		return
	}

	var tags []string
	for _, t := range req.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	r := &models.Resource{
		ID:           uuid.NewString(),
		DisasterID:   req.DisasterID,
		Name:         req.Name,
		Type:         req.Type,
		LocationName: req.LocationName,
		Tags:         tags,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.repo.AddResource(ctx, r); err != nil {
		slog.Error("error adding resource", "disaster_id", req.DisasterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create resource"})
		return
	}

	c.JSON(http.StatusCreated, toResourceResponse(r))
}

func (h *Handler) getResources(c *gin.Context) {
	resources, err := h.repo.ListResources(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("error listing resources", "disaster_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch resources"})
		return
	}

	out := make([]resourceResponse, 0, len(resources))
	for i := range resources {
		out = append(out, toResourceResponse(&resources[i]))
	}
	c.JSON(http.StatusOK, gin.H{"resources": out, "count": len(out)})
}

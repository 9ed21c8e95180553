package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag     float64 `json:"mag"`
	Place   string  `json:"place"`
	Time    int64   `json:"time"` // unix millis
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Alert   string  `json:"alert"`   // PAGER level: green, yellow, orange, red
	Tsunami int     `json:"tsunami"` // 0 or 1
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

func parseUSGS(r io.Reader) ([]*models.Disaster, error) {
	var data usgsResponse
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding USGS feed: %w", err)
	}

	disasters := make([]*models.Disaster, 0, len(data.Features))
	for _, f := range data.Features {
		if len(f.Geometry.Coordinates) < 2 {
			slog.Warn("USGS feature without coordinates", "id", f.ID)
			continue
		}
		p := geo.NewPoint(f.Geometry.Coordinates[1], f.Geometry.Coordinates[0])
		if err := p.Validate(); err != nil {
			slog.Warn("USGS feature with invalid coordinates", "id", f.ID, "error", err)
			continue
		}

		d := &models.Disaster{
			ID:          "usgs_" + f.ID,
			Source:      sourceUSGS,
			Type:        models.DisasterTypeEarthquake,
			Title:       f.Properties.Title,
			Description: f.Properties.Place,
			Magnitude:   f.Properties.Mag,
			AlertLevel:  mapUSGSAlert(f.Properties.Alert),
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Timestamp:   time.UnixMilli(f.Properties.Time),
			ReportURL:   f.Properties.URL,
		}
		if f.Properties.Tsunami == 1 {
			d.Tags = append(d.Tags, string(models.DisasterTypeTsunami))
		}
		disasters = append(disasters, d)
	}

	return disasters, nil
}

// USGS has a yellow level that GDACS does not; it sits with orange.
func mapUSGSAlert(alert string) models.AlertLevel {
	switch alert {
	case "green":
		return models.AlertLevelGreen
	case "yellow", "orange":
		return models.AlertLevelOrange
	case "red":
		return models.AlertLevelRed
	default:
		return models.AlertLevelUnknown
	}
}

package ingestion

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

type gdacsRSS struct {
	Channel gdacsChannel `xml:"channel"`
}
type gdacsChannel struct {
	Items []gdacsItem `xml:"item"`
}
type gdacsItem struct {
	Title       string  `xml:"title"`
	Description string  `xml:"description"`
	Link        string  `xml:"link"`
	PubDate     string  `xml:"pubDate"`
	Lat         float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# Point>lat"`
	Lon         float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# Point>long"`
	EventType   string  `xml:"http://www.gdacs.org eventtype"`
	AlertLevel  string  `xml:"http://www.gdacs.org alertlevel"`
	EventID     string  `xml:"http://www.gdacs.org eventid"`
	Severity    float64 `xml:"http://www.gdacs.org severity"`
	Country     string  `xml:"http://www.gdacs.org country"`
}

func parseGDACS(r io.Reader) ([]*models.Disaster, error) {
	var data gdacsRSS
	if err := xml.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding GDACS feed: %w", err)
	}

	disasters := make([]*models.Disaster, 0, len(data.Channel.Items))
	for _, item := range data.Channel.Items {
		if item.EventID == "" {
			continue
		}
		p := geo.NewPoint(item.Lat, item.Lon)
		if err := p.Validate(); err != nil {
			slog.Warn("GDACS item with invalid coordinates", "id", item.EventID, "error", err)
			continue
		}

		timestamp, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			slog.Warn("GDACS timestamp parsing failed", "id", item.EventID, "error", err.Error())
		}

		d := &models.Disaster{
			ID:          "gdacs_" + item.EventID,
			Source:      sourceGDACS,
			Type:        mapGDACSEventType(item.EventType),
			Title:       item.Title,
			Description: item.Description,
			Magnitude:   item.Severity,
			AlertLevel:  models.AlertLevel(strings.ToLower(strings.TrimSpace(item.AlertLevel))),
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Timestamp:   timestamp,
			Country:     item.Country,
			ReportURL:   item.Link,
		}
		if d.AlertLevel.Rank() == 0 {
			d.AlertLevel = models.AlertLevelUnknown
		}
		disasters = append(disasters, d)
	}

	return disasters, nil
}

func mapGDACSEventType(eventType string) models.DisasterType {
	switch strings.ToUpper(eventType) {
	case "EQ":
		return models.DisasterTypeEarthquake
	case "TC":
		return models.DisasterTypeCyclone
	case "FL":
		return models.DisasterTypeFlood
	case "VO":
		return models.DisasterTypeVolcano
	case "TS":
		return models.DisasterTypeTsunami
	case "WF":
		return models.DisasterTypeWildfire
	case "DR":
		return models.DisasterTypeDrought
	default:
		return models.DisasterTypeUnknown
	}
}

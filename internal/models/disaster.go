package models

import (
	"time"

	"github.com/mr1hm/go-disaster-proximity/internal/geo"
)

type DisasterType string

const (
	DisasterTypeUnknown    DisasterType = "unknown"
	DisasterTypeEarthquake DisasterType = "earthquake"
	DisasterTypeFlood      DisasterType = "flood"
	DisasterTypeCyclone    DisasterType = "cyclone"
	DisasterTypeTsunami    DisasterType = "tsunami"
	DisasterTypeVolcano    DisasterType = "volcano"
	DisasterTypeWildfire   DisasterType = "wildfire"
	DisasterTypeDrought    DisasterType = "drought"
)

type AlertLevel string

const (
	AlertLevelUnknown AlertLevel = ""
	AlertLevelGreen   AlertLevel = "green"
	AlertLevelOrange  AlertLevel = "orange"
	AlertLevelRed     AlertLevel = "red"
)

// Rank orders alert levels so that red > orange > green > unknown.
func (a AlertLevel) Rank() int {
	switch a {
	case AlertLevelGreen:
		return 1
	case AlertLevelOrange:
		return 2
	case AlertLevelRed:
		return 3
	default:
		return 0
	}
}

type Disaster struct {
	ID          string // Unique ID from source (e.g., "gdacs_12345")
	Source      string
	Type        DisasterType
	Title       string
	Description string
	Magnitude   float64 // Richter scale for earthquakes
	AlertLevel  AlertLevel
	Tags        []string
	Latitude    float64
	Longitude   float64
	Timestamp   time.Time // when the event occurred
	Country     string
	ReportURL   string
	Raw         []byte    // original JSON/XML for debugging
	CreatedAt   time.Time // when we ingested it
}

func (d *Disaster) Coordinates() geo.Point {
	return geo.NewPoint(d.Latitude, d.Longitude)
}

func (d *Disaster) Entity() Entity {
	return Entity{
		ID:       d.ID,
		Kind:     KindDisaster,
		Name:     d.Title,
		Type:     string(d.Type),
		Tags:     d.Tags,
		Location: d.Coordinates(),
	}
}

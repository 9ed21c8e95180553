package ingestion

import (
	"slices"

	"github.com/mr1hm/go-disaster-proximity/internal/models"
)

const (
	tagUrgent       = "urgent"
	urgentMagnitude = 6.0
	alertTagPrefix  = "alert-"
)

// DeriveTags returns the searchable tags for a disaster: its type, its alert
// level, "urgent" for orange/red alerts and strong earthquakes, plus any tags
// the parser already attached.
func DeriveTags(d *models.Disaster) []string {
	tags := make([]string, 0, len(d.Tags)+3)
	add := func(t string) {
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}

	if d.Type != "" && d.Type != models.DisasterTypeUnknown {
		add(string(d.Type))
	}
	for _, t := range d.Tags {
		add(t)
	}
	if d.AlertLevel != models.AlertLevelUnknown {
		add(alertTagPrefix + string(d.AlertLevel))
	}
	if d.AlertLevel.Rank() >= models.AlertLevelOrange.Rank() ||
		(d.Type == models.DisasterTypeEarthquake && d.Magnitude >= urgentMagnitude) {
		add(tagUrgent)
	}
	return tags
}

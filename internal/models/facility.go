package models

import "github.com/ashharzawarsyed/alertx-sub004/internal/geo"

// Known bed categories
const (
	BedGeneral   = "general"
	BedICU       = "icu"
	BedEmergency = "emergency"
)

// DefaultBedCategories the validated category set when none is configured
var DefaultBedCategories = []string{BedGeneral, BedICU, BedEmergency}

// BedCount capacity of one category; 0 <= Available <= Total
type BedCount struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// Facility hospital with per-category bed capacity
type Facility struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Location *geo.Point          `json:"location,omitempty"`
	Beds     map[string]BedCount `json:"beds"`
}
